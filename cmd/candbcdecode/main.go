package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/canlab/go-candb"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "candbcdecode"
	app.Usage = "decode CAN frames against a DBC/KCD/SYM database"
	app.Commands = []cli.Command{
		{
			Name:      "decode",
			Usage:     "read frame lines from stdin and append decoded signal values",
			ArgsUsage: "<db-file>",
			Action:    decodeAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func decodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("exactly one argument required: <db-file>", 1)
	}
	dbPath := c.Args().Get(0)

	db, err := candb.LoadFile(dbPath)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("loading database: %v", err), 1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Println(decodeLine(db, line))
	}
	return scanner.Err()
}

// decodeLine appends " :: NAME(sig: val, ...)" to line when it matches the
// "  <iface>  <hex-id>   [<len>]  <hex bytes...>" shape and the id is known to db. Lines that
// don't match, or whose id isn't found, are returned unchanged.
func decodeLine(db *candb.Database, line string) string {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return line
	}

	frameID, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return line
	}

	lengthField := strings.Trim(fields[2], "[]")
	length, err := strconv.Atoi(lengthField)
	if err != nil {
		return line
	}
	if len(fields) < 3+length {
		return line
	}

	payload := make([]byte, length)
	for i := 0; i < length; i++ {
		b, err := strconv.ParseUint(fields[3+i], 16, 8)
		if err != nil {
			return line
		}
		payload[i] = byte(b)
	}

	msg, err := db.LookupMessage(uint32(frameID))
	if err != nil {
		return line
	}

	decoded, err := db.DecodeMessage(uint32(frameID), payload)
	if err != nil {
		return line
	}

	var parts []string
	for _, sig := range msg.Signals {
		if v, ok := decoded[sig.Name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", sig.Name, v))
		}
	}

	return fmt.Sprintf("%s :: %s(%s)", line, msg.Name, strings.Join(parts, ", "))
}
