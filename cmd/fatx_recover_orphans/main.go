package main

import (
	"fmt"
	"os"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fatx"
)

type rootParameters struct {
	ImageFilepath  string `short:"f" long:"image-filepath" description:"File-path of disk image" required:"true"`
	PartitionStart int64  `short:"p" long:"partition-start" description:"Byte offset of the partition within the image" default:"0"`
	PartitionSize  int64  `short:"s" long:"partition-size" description:"Byte size of the partition (0 for the rest of the image)" default:"0"`
	BigEndian      bool   `short:"b" long:"big-endian" description:"Volume uses big-endian byte order (X360)"`
	OutputPath     string `short:"o" long:"output-path" description:"Path to rescue into (print-only if omitted)"`
	SessionPath    string `short:"j" long:"session-filepath" description:"File-path to write the scan session to, as JSON"`
	MaxClusters    uint32 `short:"m" long:"max-clusters" description:"Scan only the first N clusters (0 for all)" default:"0"`
}

var (
	rootArguments = new(rootParameters)
)

func printOrphan(orphan *fatx.Orphan, pathPrefix string) {
	wholePath := pathPrefix + "/" + orphan.FileName

	marker := "FILE "
	if orphan.IsDirectory() == true {
		marker = "DIR  "
	}

	fmt.Printf("%s (cluster %d) %15s %s\n", marker, orphan.Cluster(), humanize.Comma(int64(orphan.FileSize)), wholePath)

	for _, child := range orphan.Children() {
		printOrphan(child, wholePath)
	}
}

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

	fa := fatx.NewFatXAnalyzer(fv)

	err = fa.ScanOrphans(rootArguments.MaxClusters)
	log.PanicIf(err)

	fa.LinkOrphans()

	for _, orphan := range fa.Roots() {
		printOrphan(orphan, "")
	}

	if rootArguments.SessionPath != "" {
		g, err := os.Create(rootArguments.SessionPath)
		log.PanicIf(err)

		defer g.Close()

		err = fa.SaveRoots(g)
		log.PanicIf(err)
	}

	if rootArguments.OutputPath != "" {
		err = os.MkdirAll(rootArguments.OutputPath, 0755)
		log.PanicIf(err)

		fa.RescueAll(rootArguments.OutputPath)
	}
}
