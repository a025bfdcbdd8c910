// Package prompt asks the interactive questions on a line-oriented terminal.
// Answers already given by an input file are never asked again; the tools
// receive a complete parameter set and never read stdin themselves.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrClosed means stdin ended before an answer was given. Callers treat it
// like a cancel.
var ErrClosed = errors.New("input closed")

type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Line prints question and returns the trimmed answer.
func (p *Prompter) Line(question string) (string, error) {
	fmt.Fprint(p.out, question)
	s, err := p.in.ReadString('\n')
	switch {
	case errors.Is(err, io.EOF) && s == "":
		fmt.Fprintln(p.out)
		return "", ErrClosed
	case err != nil && !errors.Is(err, io.EOF):
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// YesNo accepts y or n in any case; an empty answer picks def.
func (p *Prompter) YesNo(question string, def bool) (bool, error) {
	for {
		a, err := p.Line(question)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(a) {
		case "":
			return def, nil
		case "y":
			return true, nil
		case "n":
			return false, nil
		}
		p.Printf("Please state \"y\" or \"n\".\n")
	}
}

// Choose lists options numbered from 1 and returns the picked number. With
// cancel set, "c" returns 0.
func (p *Prompter) Choose(title, question string, options []string, cancel bool) (int, error) {
	p.Printf("%s\n", title)
	for i, o := range options {
		p.Printf("%d. %s\n", i+1, o)
	}
	hint := fmt.Sprintf("1-%d", len(options))
	if cancel {
		p.Printf("c. Cancel\n")
		hint += ", c"
	}
	for {
		a, err := p.Line(fmt.Sprintf("%s (%s): ", question, hint))
		if err != nil {
			return 0, err
		}
		if cancel && strings.EqualFold(a, "c") {
			return 0, nil
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			p.Printf("Please state a number.\n")
			continue
		}
		if n < 1 || n > len(options) {
			p.Printf("Please state a number between 1 and %d.\n", len(options))
			continue
		}
		return n, nil
	}
}

// Confirm prints warning and asks whether to continue; the default is no.
func (p *Prompter) Confirm(warning string) (bool, error) {
	p.Printf("\nWarning: %s\nIt is recommended to make a backup of your world beforehand.\n", warning)
	p.Printf("No further confirmation requests will be made.\n")
	return p.YesNo("Do you want to continue? (y/N): ", false)
}
