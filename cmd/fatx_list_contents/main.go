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
	ShowDeleted    bool   `short:"d" long:"show-deleted" description:"Also list deleted entries"`
}

var (
	rootArguments = new(rootParameters)
)

func printTree(dirent *fatx.Dirent, pathPrefix string) {
	if dirent.IsDeleted() == true && rootArguments.ShowDeleted == false {
		return
	}

	wholePath := pathPrefix + "/" + dirent.FileName

	marker := "     "
	if dirent.IsDeleted() == true {
		marker = "DEL  "
	} else if dirent.IsDirectory() == true {
		marker = "DIR  "
	}

	timestamp := ""
	if dirent.LastWriteTime != nil {
		timestamp = dirent.LastWriteTime.String()
	}

	fmt.Printf("%s%15s %21s %s\n", marker, humanize.Comma(int64(dirent.FileSize)), timestamp, wholePath)

	if dirent.IsDirectory() == true && dirent.IsDeleted() == false {
		for _, child := range dirent.Children() {
			printTree(child, wholePath)
		}
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

	for _, dirent := range fv.Root() {
		printTree(dirent, "")
	}
}
