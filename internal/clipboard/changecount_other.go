//go:build !darwin

package clipboard

func changeCount() int {
	return -1
}
