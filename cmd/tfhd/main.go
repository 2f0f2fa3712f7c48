package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/mhw/tf5000fs"
	"github.com/mhw/tf5000fs/internal/blockio"
)

// rootParameters carries the flags common to every subcommand.
type rootParameters struct {
	DevicePath string `short:"f" long:"device" description:"Path to the disk image or block device" required:"true"`
	SizeBytes  uint64 `short:"s" long:"size-override" description:"Override detected device size, in bytes"`
}

var rootArguments = new(rootParameters)

type infoCommand struct {
	ShowClusters bool `long:"clusters" description:"Print total, reachable and superblock-claimed cluster counts"`
}

type lsCommand struct {
	Positional struct {
		Path string `positional-arg-name:"path"`
	} `positional-args:"yes"`

	Long bool `short:"l" long:"long" description:"Long listing, including size and mtime"`
	CSV  bool `long:"csv" description:"Emit the listing as CSV"`
}

type cpCommand struct {
	Positional struct {
		Source      string `positional-arg-name:"source"`
		Destination string `positional-arg-name:"destination"`
	} `positional-args:"yes"`
}

func main() {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			if err, ok := errRaw.(error); ok {
				log.PrintError(err)
			} else {
				fmt.Fprintf(os.Stderr, "error: %v\n", errRaw)
			}
			os.Exit(-1)
		}
	}()

	parser := flags.NewParser(rootArguments, flags.Default)

	_, err := parser.AddCommand("info", "Print superblock and geometry information", "", &infoCommand{})
	log.PanicIf(err)

	_, err = parser.AddCommand("ls", "List a directory", "", &lsCommand{})
	log.PanicIf(err)

	_, err = parser.AddCommand("cp", "Copy a file out of the filesystem", "", &cpCommand{})
	log.PanicIf(err)

	_, err = parser.Parse()
	log.PanicIf(err)
}

// openFilesystem is the shared setup every subcommand needs: a block
// source over rootArguments.DevicePath, and a validated Filesystem atop
// it.
func openFilesystem() *fat24.Filesystem {
	source, err := blockio.Open(rootArguments.DevicePath, rootArguments.SizeBytes)
	log.PanicIf(err)

	fs, err := fat24.DiskOpen(rootArguments.DevicePath, source)
	log.PanicIf(err)

	return fs
}

func (cmd *infoCommand) Execute(args []string) error {
	fs := openFilesystem()

	fmt.Printf("device:              %s\n", rootArguments.DevicePath)
	fmt.Printf("block size:          %d\n", fs.Disk.BlockSize)
	fmt.Printf("total blocks:        %s\n", humanize.Comma(int64(fs.Disk.TotalBlocks)))
	fmt.Printf("total size:          %s\n", fat24.FormatDiskSize(fs.Disk.TotalBlocks*uint64(fs.Disk.BlockSize)))
	fmt.Printf("blocks per cluster:  %d\n", fs.BlocksPerCluster)
	fmt.Printf("root dir cluster:    %d\n", fs.RootDirCluster)
	fmt.Printf("used clusters:       %s\n", humanize.Comma(int64(fs.UsedClusters)))
	fmt.Printf("root unused bytes:   %d\n", fs.UnusedBytesInRoot)

	if fs.Warnings.Len() > 0 {
		fmt.Printf("warnings:\n%s", fs.Warnings.String())
	}

	if cmd.ShowClusters {
		bm, usage, err := fat24.ClusterBitmap(fs)
		log.PanicIf(err)
		_ = bm

		fmt.Printf("total clusters:      %s\n", humanize.Comma(int64(usage.TotalClusters)))
		fmt.Printf("reachable used:      %s\n", humanize.Comma(int64(usage.ReachableUsed)))
		fmt.Printf("superblock used:     %s\n", humanize.Comma(int64(usage.SuperblockUsed)))
	}

	return nil
}

func (cmd *lsCommand) Execute(args []string) error {
	fs := openFilesystem()

	entries, err := fs.List(cmd.Positional.Path)
	log.PanicIf(err)

	if cmd.CSV {
		text, err := fat24.ExportListingCSV(entries)
		log.PanicIf(err)

		fmt.Print(text)
		return nil
	}

	for _, e := range entries {
		if !cmd.Long {
			fmt.Println(e.Name)
			continue
		}

		size, err := e.Size()
		log.PanicIf(err)

		fmt.Printf("%-6s %12s  %s  %s\n", e.Type, humanize.Comma(int64(size)), e.ModTime.Format("2006-01-02 15:04:05"), e.Name)
	}

	return nil
}

func (cmd *cpCommand) Execute(args []string) error {
	fs := openFilesystem()

	fh, err := fs.Open(cmd.Positional.Source)
	log.PanicIf(err)

	out, err := os.Create(cmd.Positional.Destination)
	log.PanicIf(err)

	defer out.Close()

	buf := make([]byte, 1024*1024)

	for {
		n, readErr := fh.Read(buf)
		if n > 0 {
			_, writeErr := out.Write(buf[:n])
			log.PanicIf(writeErr)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			log.PanicIf(readErr)
		}
	}

	return nil
}
