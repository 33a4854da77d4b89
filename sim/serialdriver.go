package sim

// A SerialDriver polls the components one after another, in registration
// order.
type SerialDriver struct {
	*driverBase
}

// NewSerialDriver creates a SerialDriver.
func NewSerialDriver(mgr *Manager) *SerialDriver {
	d := &SerialDriver{driverBase: newDriverBase(mgr)}
	d.poll = pollSerially

	return d
}

func pollSerially(comps []Component) (int, error) {
	observed := 0

	for _, c := range comps {
		n, err := c.PollRecv()
		observed += n

		if err != nil {
			return observed, err
		}
	}

	return observed, nil
}
