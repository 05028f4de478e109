package util

// Ptr returns a pointer to the given value. Handy for optional
// timestamp fields on job records.
func Ptr[T any](v T) *T {
	return &v
}
