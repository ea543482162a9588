package twi

import "unsafe"

// Fixed-size-object convenience forms. These transfer the in-memory bytes of
// a fixed-size value, which keeps the hot path allocation-free. T must not
// contain pointers and its size is checked against the same bounds as the
// slice forms; layout is the platform's, so both bus peers must agree on it.

func objectBytes[T any](obj *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(obj)), unsafe.Sizeof(*obj))
}

// WriteObject sends the bytes of *obj to addr. See Driver.Write.
func WriteObject[T any](d *Driver, addr uint8, obj *T, wait bool) error {
	return d.Write(addr, objectBytes(obj), wait)
}

// ReadObject fills *obj with bytes read from addr. See Driver.Read.
func ReadObject[T any](d *Driver, addr uint8, obj *T) error {
	return d.Read(addr, objectBytes(obj))
}

// TransmitObject loads the bytes of *obj as the reply to a controller read.
// See Driver.Transmit.
func TransmitObject[T any](d *Driver, obj *T) error {
	return d.Transmit(objectBytes(obj))
}
