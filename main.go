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

// elAssemble is a high-performance tool for correcting sequencing
// errors in short-read data and simplifying de Bruijn assembly
// graphs.
//
// Please see https://github.com/exascience/elassemble for a
// documentation of the tool.
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: correct, simplify")
	fmt.Fprint(os.Stderr, "\n", cmd.CorrectHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.SimplifyHelp)
}

func main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.StandardLogger().Formatter = &log.TextFormatter{DisableTimestamp: true}
	}
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "correct":
		err = cmd.Correct()
	case "simplify":
		err = cmd.Simplify()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command: ", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
