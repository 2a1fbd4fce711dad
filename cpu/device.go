package cpu

import (
	"iter"
	"log"

	"github.com/ezrec/qcpu/internal"
)

// Device is a port-mapped peripheral, reached with IN and OUT.
type Device interface {
	Name() string
	Read(address uint64) uint64
	Write(address uint64, value uint64)
}

// PortBinder is implemented by devices that want to know their port.
type PortBinder interface {
	BindPort(port uint64)
	UnbindPort()
}

// Devices is the port registry of the CPU.
type Devices struct {
	ports map[uint64]Device
}

// Add binds a device to a port. Adding the same device to the same port
// again does nothing; a port in use by another device is an error.
func (devs *Devices) Add(port uint64, device Device) (err error) {
	if current, ok := devs.ports[port]; ok {
		if current == device {
			return
		}
		err = ErrPortInUse
		return
	}

	if other, ok := devs.Port(device); ok {
		log.Printf("devices: %v", f("device %v already bound to port 0x%x, also binding to 0x%x", device.Name(), other, port))
	}

	if devs.ports == nil {
		devs.ports = make(map[uint64]Device)
	}
	devs.ports[port] = device
	if binder, ok := device.(PortBinder); ok {
		binder.BindPort(port)
	}
	return
}

// Get the device on a port, or nil.
func (devs *Devices) Get(port uint64) Device {
	return devs.ports[port]
}

// Remove unbinds the device on a port.
func (devs *Devices) Remove(port uint64) (ok bool) {
	device, ok := devs.ports[port]
	if !ok {
		return
	}
	delete(devs.ports, port)
	if binder, isBinder := device.(PortBinder); isBinder {
		binder.UnbindPort()
	}
	return
}

// Reroute moves the device on one port to another. Moving to the same port
// succeeds; moving from an empty port or onto a used one does not.
func (devs *Devices) Reroute(from, to uint64) bool {
	if from == to {
		return true
	}
	device, ok := devs.ports[from]
	if !ok {
		return false
	}
	if _, used := devs.ports[to]; used {
		return false
	}

	delete(devs.ports, from)
	devs.ports[to] = device
	if binder, isBinder := device.(PortBinder); isBinder {
		binder.BindPort(to)
	}
	return true
}

// Port finds the lowest port a device is bound to.
func (devs *Devices) Port(device Device) (port uint64, ok bool) {
	for p, dev := range devs.All() {
		if dev == device {
			return p, true
		}
	}
	return
}

// All devices, in port order.
func (devs *Devices) All() iter.Seq2[uint64, Device] {
	return internal.IterSorted(devs.ports)
}
