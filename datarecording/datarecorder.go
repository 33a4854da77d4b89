// Package datarecording stores tables of simulation data in SQLite.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

// ErrInvalidEntry is returned when an entry cannot be mapped to a table row.
var ErrInvalidEntry = errors.New("entry is not a flat struct of basic types")

// DataRecorder is a backend that can record and store data.
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the exported fields
	// of the sample entry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry of a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the names of the tables created, in creation order.
	ListTables() []string

	// RecordExecInfo attaches a property to the execution record, which is
	// written when the recorder is closed.
	RecordExecInfo(property, value string)

	// Flush writes all the buffered entries into the database.
	Flush()

	// Close flushes, records the end of the execution, and closes the
	// database. Calling Close more than once has no effect.
	Close() error
}

// NewDataRecorder creates a DataRecorder that writes into path.sqlite3. An
// empty path generates a unique name. The file must not exist.
func NewDataRecorder(path string) DataRecorder {
	w := newSQLiteWriter(path)
	w.init()
	w.startExec()

	atexit.Register(func() { _ = w.Close() })

	return w
}

// NewDataRecorderWithDB creates a DataRecorder on an opened database.
func NewDataRecorderWithDB(db *sql.DB) DataRecorder {
	w := newSQLiteWriter("")
	w.db = db
	w.startExec()

	atexit.Register(func() { _ = w.Close() })

	return w
}

type table struct {
	structType reflect.Type
	entries    []any
}

// sqliteWriter is the writer that writes data into a SQLite database. It
// is safe for concurrent use, as hooks may record from several goroutines.
type sqliteWriter struct {
	lock sync.Mutex

	db         *sql.DB
	dbName     string
	tables     map[string]*table
	tableOrder []string
	batchSize  int
	entryCount int
	exec       *execRecorder
	closing    bool
	closed     bool
}

func newSQLiteWriter(path string) *sqliteWriter {
	return &sqliteWriter{
		dbName:    path,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}
}

func (w *sqliteWriter) init() {
	if w.dbName == "" {
		w.dbName = "rsim_" + xid.New().String()
	}

	filename := w.dbName + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	zap.L().Info("database created for recording",
		zap.String("file", filename))

	w.db = db
}

func (w *sqliteWriter) startExec() {
	w.exec = newExecRecorder(w)
	w.exec.start()
}

// sqlType maps a field kind to a SQLite column type. Unsupported kinds map
// to the empty string.
func sqlType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "INTEGER"
	case reflect.Float32, reflect.Float64:
		return "REAL"
	case reflect.String:
		return "TEXT"
	default:
		return ""
	}
}

func columns(structType reflect.Type) ([]string, error) {
	if structType == nil || structType.Kind() != reflect.Struct {
		return nil, errors.WithStack(ErrInvalidEntry)
	}

	cols := make([]string, 0, structType.NumField())

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)

		t := sqlType(field.Type.Kind())
		if t == "" || !field.IsExported() {
			return nil, errors.Wrapf(ErrInvalidEntry,
				"field %s of %s", field.Name, structType)
		}

		cols = append(cols, field.Name+" "+t)
	}

	return cols, nil
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	structType := reflect.TypeOf(sampleEntry)

	cols, err := columns(structType)
	if err != nil {
		panic(err)
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if _, exists := w.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	createTableSQL := `CREATE TABLE ` + tableName +
		` (` + "\n\t" + strings.Join(cols, ", \n\t") + "\n" + `);`
	w.mustExecute(createTableSQL)

	w.tables[tableName] = &table{structType: structType}
	w.tableOrder = append(w.tableOrder, tableName)
}

func (w *sqliteWriter) InsertData(tableName string, entry any) {
	w.lock.Lock()
	defer w.lock.Unlock()

	t, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		panic(fmt.Sprintf("entry of type %T does not fit table %s",
			entry, tableName))
	}

	t.entries = append(t.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		w.flush()
	}
}

func (w *sqliteWriter) ListTables() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	tables := make([]string, len(w.tableOrder))
	copy(tables, w.tableOrder)

	return tables
}

func (w *sqliteWriter) RecordExecInfo(property, value string) {
	w.exec.record(property, value)
}

func (w *sqliteWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.flush()
}

func (w *sqliteWriter) flush() {
	if w.entryCount == 0 || w.closed {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		panic(err)
	}

	for _, tableName := range w.tableOrder {
		t := w.tables[tableName]
		if len(t.entries) == 0 {
			continue
		}

		stmt := w.prepareStatement(tx, tableName, t.structType)

		for _, entry := range t.entries {
			v := reflect.ValueOf(entry)
			values := make([]any, v.NumField())

			for i := 0; i < v.NumField(); i++ {
				values[i] = v.Field(i).Interface()
			}

			if _, err := stmt.Exec(values...); err != nil {
				_ = tx.Rollback()
				panic(err)
			}
		}

		t.entries = nil

		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}

	w.entryCount = 0
}

func (w *sqliteWriter) Close() error {
	w.lock.Lock()
	if w.closing {
		w.lock.Unlock()
		return nil
	}
	w.closing = true
	w.lock.Unlock()

	if w.exec != nil {
		w.exec.end()
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	w.flush()
	w.closed = true

	return errors.Wrap(w.db.Close(), "closing recording database")
}

func (w *sqliteWriter) mustExecute(query string) sql.Result {
	res, err := w.db.Exec(query)
	if err != nil {
		zap.L().Error("failed to execute",
			zap.String("query", query), zap.Error(err))
		panic(err)
	}

	return res
}

func (w *sqliteWriter) prepareStatement(
	tx *sql.Tx,
	tableName string,
	structType reflect.Type,
) *sql.Stmt {
	marks := make([]string, structType.NumField())
	for i := range marks {
		marks[i] = "?"
	}

	sqlStr := "INSERT INTO " + tableName +
		" VALUES (" + strings.Join(marks, ", ") + ")"

	stmt, err := tx.Prepare(sqlStr)
	if err != nil {
		panic(err)
	}

	return stmt
}
