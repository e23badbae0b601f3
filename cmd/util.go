// elAssemble: a high-performance tool for correcting sequencing reads
// and simplifying de Bruijn assembly graphs.
// Copyright (c) 2021-2023 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elassemble/blob/master/LICENSE.txt>.

// Package cmd implements the elassemble subcommands.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/exascience/elassemble/internal"
	"github.com/exascience/elassemble/utils"
)

// ProgramMessage is the first line printed when the elassemble binary
// is called.
var ProgramMessage string

func init() {
	ProgramMessage = fmt.Sprint(
		"\n", utils.ProgramName, " version ", utils.ProgramVersion,
		" compiled with ", runtime.Version(),
		" - see ", utils.ProgramURL, " for more information.\n",
	)
}

// HelpMessage is printed to show the --help flag
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

func getFilename(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(0)
	default:
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "--") {
			log.Println("Filename(s) in command line missing.")
			fmt.Fprint(os.Stderr, help)
			os.Exit(1)
		}
	}
	return s
}

func parseFlags(flags flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(ioutil.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func logCheckFile(parameter, format string, v ...interface{}) {
	if parameter != "" {
		log.Printf(format+" for command line parameter %v.", append(v, parameter)...)
	} else {
		log.Printf(format+".", v...)
	}
}

func checkExist(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "Error: Missing filename")
		return false
	}
	if !internal.FileExists(filename) {
		logCheckFile(parameter, "Error: File %v does not exist", filename)
		return false
	}
	return true
}

func createLogFilename() string {
	t := time.Now()
	zone, _ := t.Zone()
	return fmt.Sprintf("logs/elassemble/elassemble-%d-%02d-%02d-%02d-%02d-%02d-%09d-%v.log",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

func setLogOutput(path string) {
	logPath := createLogFilename()
	var fullPath string
	if path == "" {
		fullPath = filepath.Join(os.Getenv("HOME"), logPath)
	} else {
		fullPath = filepath.Join(path, logPath)
	}
	internal.MkdirAll(filepath.Dir(fullPath), 0700)
	f := internal.FileCreate(fullPath)
	fmt.Fprintln(f, ProgramMessage)

	log.SetOutput(io.MultiWriter(f, os.Stderr))
	log.Println("Created log file at ", fullPath)
	log.Println("Command line: ", os.Args)
}

func timedRun(msg string, f func()) {
	log.Println(msg)
	start := time.Now()
	defer func() {
		log.Println("Elapsed time: ", time.Since(start))
		var ru unix.Rusage
		if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err == nil {
			log.Println("Maximum resident set size: ", ru.Maxrss, " kB")
		}
	}()
	f()
}
