// Periodically ping dvid

package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/janelia-flyem/godvid/connection"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")
)

const helpMessage = `

pingdvid periodically calls a DVID server as a heartbeat, reopening the
connection and rechecking the advertised version on every tick.

Usage: pingdvid [options] <delay in seconds> <dvid host>

  Example host: http://emdata2.int.janelia.org:7000

  -h, -help       (flag)    Show help message
`

var usage = func() {
	fmt.Printf(helpMessage)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if *showHelp || flag.NArg() != 2 {
		flag.Usage()
		os.Exit(0)
	}

	args := flag.Args()
	pause, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("error parsing pause time %q: %v\n", args[0], err)
		os.Exit(1)
	}
	host := args[1]

	for t := range time.Tick(time.Duration(pause) * time.Second) {
		conn, err := connection.New(host)
		if err != nil {
			fmt.Printf("%s: cannot reach %q: %v\n", t, host, err)
			os.Exit(1)
		}
		status, _, err := conn.Do("/server/info", connection.GET, nil)
		if err != nil {
			fmt.Printf("%s: error pinging %q: %v\n", t, conn.Addr(), err)
			os.Exit(1)
		}
		if status != 200 {
			fmt.Printf("Bad response %s: status %d\n", time.Now(), status)
		}
	}
}
