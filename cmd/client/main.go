// Command client is the interactive console client for a Parlor server.
//
// Commands:
//
//	login <user> <pass>     connect to the server
//	newuser <user> <pass>   register and login
//	send all <text>         message every connected user
//	send <user> <text>      message one user
//	who                     list connected users
//	logout                  disconnect
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/parlorchat/parlor/pkg/client"
	"github.com/parlorchat/parlor/pkg/protocol"
	"github.com/parlorchat/parlor/pkg/version"
)

func main() {
	addr := flag.String("addr", "localhost:10064", "Server address")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("parlor-client " + version.Full())
		return
	}

	fmt.Println("Parlor chat client", version.String())
	scanner := bufio.NewScanner(os.Stdin)

	// The first accepted command must be a well-formed login or newuser;
	// its username doubles as the connection handshake.
	command, username := readInitialCommand(scanner)
	if command == "" {
		return // stdin closed
	}

	c, err := client.Dial(*addr, username)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	// Retry authentication until the server confirms.
	for {
		reply, ok, err := c.Authenticate(command)
		if err != nil {
			fmt.Println("server closed the connection")
			os.Exit(1)
		}
		fmt.Println(reply)
		if ok {
			break
		}
		command, _ = readInitialCommand(scanner)
		if command == "" {
			return
		}
	}

	go c.Listen(os.Stdout)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())

		switch {
		case strings.EqualFold(input, "logout"):
			_ = c.Send(protocol.Envelope{Kind: protocol.KindLogout})
			return
		case strings.EqualFold(input, "who"):
			_ = c.Send(protocol.Envelope{Kind: protocol.KindWho})
		case strings.HasPrefix(input, "send"):
			_ = c.Send(protocol.Envelope{Kind: protocol.KindMessage, Payload: input})
		default:
			fmt.Println("Invalid command. Please try another command:")
		}
	}
}

// readInitialCommand prompts until it reads a well-formed three-token
// login or newuser command, returning the command and its username.
// Returns "" when stdin is exhausted.
func readInitialCommand(scanner *bufio.Scanner) (command, username string) {
	for {
		if !scanner.Scan() {
			return "", ""
		}
		input := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(input, "login") && !strings.HasPrefix(input, "newuser") {
			fmt.Println(">Server: Denied. Please login first.")
			continue
		}
		fields := strings.Fields(input)
		if len(fields) != 3 {
			fmt.Println("Incorrect use of function. Please provide the correct parameters")
			continue
		}
		return input, fields[1]
	}
}
