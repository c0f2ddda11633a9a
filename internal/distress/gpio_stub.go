//go:build !linux

package distress

import "fmt"

func openLine(cfg Config) (Input, error) {
	return nil, fmt.Errorf("distress: gpio unsupported on this platform")
}
