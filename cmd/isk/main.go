// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"flag"
	"log"
	"os"

	"github.com/ezrec/isk/cpu"
	"github.com/ezrec/isk/emulator"
	"github.com/ezrec/isk/translate"
)

func main() {
	var compile string
	var binary string
	var save string
	var input string
	var output string
	var verbose bool
	var steps int
	var origin int
	var bounded bool
	var floor bool
	var skip bool
	var dump bool
	var lang string

	flag.StringVar(&compile, "c", "", ".inc file to compile")
	flag.StringVar(&binary, "b", "", "binary image to load")
	flag.StringVar(&save, "s", "", "Save binary image, do not execute")
	flag.StringVar(&input, "i", "-", "Console input")
	flag.StringVar(&output, "o", "-", "Console output")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.IntVar(&steps, "steps", cpu.STEP_LIMIT, "Instruction limit, 0 for none")
	flag.IntVar(&origin, "origin", 0, "Program origin")
	flag.BoolVar(&bounded, "bounded", false, "Execute only within the program window")
	flag.BoolVar(&floor, "floor", false, "Floor division for DIV and MOD")
	flag.BoolVar(&skip, "skip", false, "Skip faulting instructions instead of halting")
	flag.BoolVar(&dump, "dump", true, "Dump the machine state after execution")
	flag.StringVar(&lang, "lang", "", "Message locale, default from the host")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	if len(lang) != 0 {
		translate.SetLocale(lang)
	}

	if (len(compile) == 0) == (len(binary) == 0) {
		log.Fatalf("%v: exactly one of -c or -b is required", os.Args[0])
	}

	config := cpu.DefaultConfig()
	config.StepLimit = steps
	config.Origin = origin
	config.Bounded = bounded
	if floor {
		config.Division = cpu.DIVISION_FLOOR
	}
	if skip {
		config.DecodeFault = cpu.POLICY_SKIP
		config.StorageFault = cpu.POLICY_SKIP
	}

	emu := emulator.NewEmulator(config)
	emu.Verbose = verbose

	// Compile a new instruction stream.
	if len(compile) != 0 {
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		err = emu.Assemble(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		for _, warn := range emu.Warnings {
			log.Printf("%v: %v", compile, warn)
		}
	}

	// Load an existing image.
	if len(binary) != 0 {
		inf, err := os.Open(binary)
		if err != nil {
			log.Fatalf("%v: %v", binary, err)
		}
		defer inf.Close()

		err = emu.LoadImage(inf)
		if err != nil {
			log.Fatalf("%v: %v", binary, err)
		}
	}

	if len(save) != 0 {
		ouf, err := os.Create(save)
		if err != nil {
			log.Fatalf("%v: %v", save, err)
		}
		defer ouf.Close()

		err = emu.SaveImage(ouf)
		if err != nil {
			log.Fatalf("%v: %v", save, err)
		}
		return
	}

	if input == "-" {
		emu.Tape.Input = os.Stdin
	} else {
		inf, err := os.Open(input)
		if err != nil {
			log.Fatalf("%v: %v", input, err)
		}
		defer inf.Close()
		emu.Tape.Input = inf
	}

	if output == "-" {
		emu.Tape.Output = os.Stdout
	} else {
		ouf, err := os.Create(output)
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		defer ouf.Close()
		emu.Tape.Output = ouf
	}

	err := emu.Run()

	if dump {
		if derr := emu.Dump(os.Stderr, true); derr != nil {
			log.Printf("dump: %v", derr)
		}
	}

	if err != nil {
		log.Fatal(err)
	}
}
