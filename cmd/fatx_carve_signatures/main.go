package main

import (
	"fmt"
	"os"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fatx"
)

type rootParameters struct {
	ImageFilepath  string `short:"f" long:"image-filepath" description:"File-path of disk image" required:"true"`
	PartitionStart int64  `short:"p" long:"partition-start" description:"Byte offset of the partition within the image" default:"0"`
	PartitionSize  int64  `short:"s" long:"partition-size" description:"Byte size of the partition (0 for the rest of the image)" default:"0"`
	BigEndian      bool   `short:"b" long:"big-endian" description:"Volume uses big-endian byte order (X360)"`
	Interval       int64  `short:"i" long:"interval" description:"Scan interval: 1, 512 (sector), 4096 (page), or 16384 (cluster)" default:"4096"`
	Length         int64  `short:"l" long:"length" description:"Bytes to scan (0 for the whole volume)" default:"0"`
	OutputPath     string `short:"o" long:"output-path" description:"Path to carve found files into (print-only if omitted)"`
}

var (
	rootArguments = new(rootParameters)
)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	f, err := os.Open(rootArguments.ImageFilepath)
	log.PanicIf(err)

	defer f.Close()

	length := rootArguments.PartitionSize
	if length == 0 {
		fi, err := f.Stat()
		log.PanicIf(err)

		length = fi.Size() - rootArguments.PartitionStart
	}

	byteOrder := binary.ByteOrder(binary.LittleEndian)
	if rootArguments.BigEndian == true {
		byteOrder = binary.BigEndian
	}

	fv := fatx.NewFatXVolume(f, rootArguments.ImageFilepath, rootArguments.PartitionStart, length, byteOrder)

	err = fv.Mount()
	log.PanicIf(err)

	fc := fatx.NewFatXCarver(fv)

	err = fc.ScanSignatures(rootArguments.Interval, rootArguments.Length)
	log.PanicIf(err)

	for _, s := range fc.FoundSignatures() {
		fmt.Printf("%s\n", s)
	}

	if rootArguments.OutputPath != "" {
		err = os.MkdirAll(rootArguments.OutputPath, 0755)
		log.PanicIf(err)

		fc.RecoverAll(rootArguments.OutputPath)
	}
}
