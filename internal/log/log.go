// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package log provides the tee'd stdout+file logger every command and
// library entry point in this module writes progress and errors through.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	file    *os.File
	writers = []io.Writer{os.Stdout}
)

// AlsoToFile additionally tees all subsequent log output to the named file,
// truncating it if it already exists.
func AlsoToFile(path string) error {
	mu.Lock()
	defer mu.Unlock()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	file = f
	writers = []io.Writer{os.Stdout, file}
	return nil
}

// Printf writes a formatted message to stdout and, if configured, the log file.
func Printf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	for _, w := range writers {
		fmt.Fprint(w, msg)
	}
}

// Println writes a message followed by a newline.
func Println(args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	msg := fmt.Sprintln(args...)
	for _, w := range writers {
		fmt.Fprint(w, msg)
	}
}

// Fatalf logs a formatted message and terminates the process. Reserved for
// unrecoverable CLI-level conditions; library code never calls this.
func Fatalf(format string, args ...interface{}) {
	Printf(format, args...)
	Sync()
	os.Exit(1)
}

// Fatal logs a message and terminates the process.
func Fatal(args ...interface{}) {
	Println(args...)
	Sync()
	os.Exit(1)
}

// Sync flushes the log file to disk, if one is open; the file stays open.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Sync()
	}
}
