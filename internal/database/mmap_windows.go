//go:build windows

package database

import "os"

// mapFile reads path into memory; read-only stores on windows are not mapped.
func mapFile(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}
