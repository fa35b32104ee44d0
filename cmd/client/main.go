package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/atinyakov/safeplay/internal/client"
	"github.com/atinyakov/safeplay/internal/models"
)

// passwordEnv lets scripts pass the password without a terminal.
const passwordEnv = "SAFEPLAY_PASSWORD"

var (
	version   string
	buildDate string
)

// readPassword takes the password from SAFEPLAY_PASSWORD, from the terminal
// without echo, or from a line on stdin when stdin is not a terminal.
func readPassword(prompt string) (string, error) {
	if p := os.Getenv(passwordEnv); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// main parses command-line flags and dispatches to register, login or exists.
func main() {
	var (
		cmd         string
		baseURL     string
		username    string
		displayName string
		email       string
		role        string
		showVer     bool
	)

	flag.StringVar(&cmd, "cmd", "", "command: register | login | exists")
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&username, "username", "", "account username")
	flag.StringVar(&displayName, "display-name", "", "display name for registration (defaults to username)")
	flag.StringVar(&email, "email", "", "email for registration (optional)")
	flag.StringVar(&role, "role", "", "player | supervisor; on login, only admits that role")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("SafePlay Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}
	if username == "" {
		log.Fatal("please provide -username=name")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c := client.New(baseURL, nil)

	switch cmd {
	case "register":
		pass, err := readPassword("Password: ")
		if err != nil {
			log.Fatal(err)
		}
		u, err := c.Register(ctx, client.Registration{
			Username:    username,
			DisplayName: displayName,
			Email:       email,
			Password:    pass,
			Role:        models.Role(role),
		})
		if errors.Is(err, client.ErrUserExists) {
			log.Fatalf("user %q already exists", username)
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Registered %s (%s) as %s\n", u.Username, u.DisplayName, u.Role)
	case "login":
		pass, err := readPassword("Password: ")
		if err != nil {
			log.Fatal(err)
		}
		u, err := c.LoginAs(ctx, username, pass, models.Role(role))
		if errors.Is(err, client.ErrInvalidCredentials) {
			log.Fatal("invalid credentials")
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Welcome, %s\n", u.DisplayName)
	case "exists":
		ok, err := c.Exists(ctx, username)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(ok)
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}
