package util

import (
	"os"
	"path/filepath"
	"strings"
)

// WriteToFile writes the lines to savePath, creating parent directories
// as needed.
func WriteToFile(savePath string, lines ...string) error {
	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(savePath, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

// AppendToFile appends the lines to savePath, creating the file and its
// parent directories on first use.
func AppendToFile(savePath string, lines ...string) error {
	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(savePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, s := range lines {
		if _, err = f.WriteString(s + "\n"); err != nil {
			return err
		}
	}
	return nil
}
