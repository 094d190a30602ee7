package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/godvid/dvid"
	"github.com/janelia-flyem/godvid/node"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	partition = flag.Int("partition", 8, "")

	logconfig = flag.String("logconfig", "", "")
)

const helpMessage = `
dvid-roistats summarizes a region of interest on a DVID server: its block
count, bounding box, and how well cubic substacks of a given size pack it.

Usage: dvid-roistats [options] host uuid name

  where host = URL for the DVID server, e.g., http://host:7000
        uuid = the UUID with sufficient characters to distinguish version
        name = name of the ROI data instance

	-partition      =number   Substack edge length in blocks for packing stats (default 8)
	-logconfig      =string   TOML file with logging configuration

	-verbose    (flag)    Run in verbose mode.
	-h, -help   (flag)    Show help message
`

type tomlConfig struct {
	Logging dvid.LogConfig
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Printf(helpMessage)
	}
	flag.Parse()

	if *showHelp || flag.NArg() != 3 {
		flag.Usage()
		os.Exit(0)
	}

	if *logconfig != "" {
		var config tomlConfig
		if _, err := toml.DecodeFile(*logconfig, &config); err != nil {
			fmt.Printf("Unable to read log config file %q: %v\n", *logconfig, err)
			os.Exit(1)
		}
		config.Logging.SetLogger()
	}
	if *runVerbose {
		dvid.SetLogMode(dvid.DebugMode)
	}

	host := flag.Args()[0]
	uuid := flag.Args()[1]
	name := flag.Args()[2]

	if err := printStats(host, uuid, name); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func printStats(host, uuid, name string) error {
	svc, err := node.OpenService(host, uuid)
	if err != nil {
		return err
	}

	blocks, err := svc.GetROI(name)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		fmt.Printf("ROI %q on node %s is empty.\n", name, svc.UUID())
		return nil
	}

	minBlock := dvid.MaxChunkPoint3d
	maxBlock := dvid.MinChunkPoint3d
	for _, block := range blocks {
		minBlock.SetMinimum(block)
		maxBlock.SetMaximum(block)
	}
	minVoxel := minBlock.MinPoint(dvid.DefaultBlockSize)
	maxVoxel := maxBlock.MaxPoint(dvid.DefaultBlockSize)

	voxelsPerBlock := int64(dvid.DefaultBlockSize)
	voxelsPerBlock = voxelsPerBlock * voxelsPerBlock * voxelsPerBlock
	numVoxels := uint64(len(blocks)) * uint64(voxelsPerBlock)

	fmt.Printf("ROI %q on node %s:\n", name, svc.UUID())
	fmt.Printf("  Blocks:       %s\n", humanize.Comma(int64(len(blocks))))
	fmt.Printf("  Voxels:       %s\n", humanize.Comma(int64(numVoxels)))
	fmt.Printf("  Grayscale:    %s\n", humanize.Bytes(numVoxels))
	fmt.Printf("  Voxel bounds: %s to %s\n", minVoxel, maxVoxel)

	size := int32(*partition)
	substacks, packing, err := svc.GetROIPartition(name, size)
	if err != nil {
		return err
	}
	fmt.Printf("  Substacks:    %s of edge %d voxels\n",
		humanize.Comma(int64(len(substacks))), size*dvid.DefaultBlockSize)
	fmt.Printf("  Packing:      %.1f%%\n", packing*100)

	if *runVerbose {
		for _, substack := range substacks {
			fmt.Printf("    %s\n", substack)
		}
	}
	return nil
}
