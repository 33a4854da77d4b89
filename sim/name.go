package sim

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidName is returned when a component or port name does not follow
// the naming convention.
var ErrInvalidName = errors.New("invalid name")

// A Name is a hierarchical name made of tokens separated by dots, such as
// "Ring[0].Adder.Out".
type Name struct {
	Tokens []NameToken
}

// NameToken is one element of a name, with the indices that follow it.
type NameToken struct {
	ElemName string
	Index    []int
}

// ParseName splits a name into tokens.
func ParseName(sname string) (Name, error) {
	tokens := strings.Split(sname, ".")
	name := Name{Tokens: make([]NameToken, len(tokens))}

	for i, token := range tokens {
		t, err := parseNameToken(token)
		if err != nil {
			return Name{}, errors.Wrapf(err, "%q", sname)
		}

		name.Tokens[i] = t
	}

	return name, nil
}

func parseNameToken(token string) (NameToken, error) {
	open := strings.IndexByte(token, '[')
	if open < 0 {
		if strings.ContainsAny(token, "]") {
			return NameToken{}, errors.Wrap(ErrInvalidName, "unmatched bracket")
		}

		return NameToken{ElemName: token}, nil
	}

	t := NameToken{ElemName: token[:open]}
	rest := token[open:]

	for rest != "" {
		end := strings.IndexByte(rest, ']')
		if rest[0] != '[' || end < 0 {
			return NameToken{}, errors.Wrap(ErrInvalidName, "unmatched bracket")
		}

		index, err := strconv.Atoi(rest[1:end])
		if err != nil || index < 0 {
			return NameToken{}, errors.Wrapf(ErrInvalidName,
				"index %q is not a non-negative integer", rest[1:end])
		}

		t.Index = append(t.Index, index)
		rest = rest[end+1:]
	}

	return t, nil
}

// ValidateName checks that a name is hierarchical, that no element is
// empty, and that every element starts with a capital letter and contains
// no underscore, quote, or dash.
func ValidateName(name string) error {
	n, err := ParseName(name)
	if err != nil {
		return err
	}

	for _, token := range n.Tokens {
		if token.ElemName == "" {
			return errors.Wrapf(ErrInvalidName, "%q has an empty element", name)
		}

		if strings.ContainsAny(token.ElemName, "_\"'-") {
			return errors.Wrapf(ErrInvalidName,
				"%q contains a forbidden character", name)
		}

		if token.ElemName[0] < 'A' || token.ElemName[0] > 'Z' {
			return errors.Wrapf(ErrInvalidName,
				"element %q must start with a capital letter", token.ElemName)
		}
	}

	return nil
}

// NameMustBeValid panics if the name does not follow the naming convention.
func NameMustBeValid(name string) {
	if err := ValidateName(name); err != nil {
		panic(err)
	}
}

// BuildName builds a name from a parent name and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildNameWithIndex builds the name of one element of a series.
func BuildNameWithIndex(parentName, elementName string, index int) string {
	return BuildName(parentName, elementName+"["+strconv.Itoa(index)+"]")
}
