package object

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/srchound/gitkernel/plumbing"
)

// ErrMalformedCommit is returned when a commit's raw body cannot be parsed.
var ErrMalformedCommit = errors.New("malformed commit object")

// Commit is the decoded form of a git commit object.
type Commit struct {
	Tree      plumbing.Hash
	Parents   []plumbing.Hash
	Author    Signature
	Committer Signature
	Encoding  string
	// ExtraHeaders carries headers this codec does not interpret, each as
	// "name value" with continuation lines joined by newlines. They are
	// re-emitted verbatim on Encode.
	ExtraHeaders []string
	PGPSignature string
	Message      string
}

func (c *Commit) Type() plumbing.ObjectType { return plumbing.CommitObject }

// NumParents returns the number of parent commits: 0 for a root commit, 2
// or more for a merge.
func (c *Commit) NumParents() int { return len(c.Parents) }

func (c *Commit) Decode(r io.Reader) error {
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if line == "\n" || (line == "" && err == io.EOF) {
			break
		}
		line = trimNewline(line)

		switch {
		case hasPrefixField(line, "tree "):
			c.Tree = plumbing.NewHash(line[len("tree "):])
		case hasPrefixField(line, "parent "):
			c.Parents = append(c.Parents, plumbing.NewHash(line[len("parent "):]))
		case hasPrefixField(line, "author "):
			c.Author.Decode([]byte(line[len("author "):]))
		case hasPrefixField(line, "committer "):
			c.Committer.Decode([]byte(line[len("committer "):]))
		case hasPrefixField(line, "encoding "):
			c.Encoding = line[len("encoding "):]
		case hasPrefixField(line, "gpgsig"):
			sig, rerr := readPGPSignature(br, line)
			if rerr != nil {
				return rerr
			}
			c.PGPSignature = sig
		default:
			if hasPrefixField(line, " ") && len(c.ExtraHeaders) > 0 {
				c.ExtraHeaders[len(c.ExtraHeaders)-1] += "\n" + line[1:]
			} else {
				c.ExtraHeaders = append(c.ExtraHeaders, line)
			}
		}

		if err == io.EOF {
			break
		}
	}

	msg, err := io.ReadAll(br)
	if err != nil {
		return err
	}
	c.Message = string(msg)
	return nil
}

func readPGPSignature(br *bufio.Reader, firstLine string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(firstLine[len("gpgsig "):])
	buf.WriteByte('\n')

	for {
		next, perr := br.Peek(1)
		if perr != nil || next[0] != ' ' {
			// Not part of the multi-line signature; this should not
			// happen for well-formed commits, but stop rather than
			// silently swallow the next header line.
			return buf.String(), nil
		}
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				buf.WriteString(line[1:])
				break
			}
			return "", err
		}
		buf.WriteString(line[1:])
		if bytes.Contains([]byte(line), []byte("END PGP SIGNATURE")) {
			break
		}
	}
	return buf.String(), nil
}

func hasPrefixField(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}

func (c *Commit) Encode(w io.Writer) error {
	var buf bytes.Buffer

	buf.WriteString("tree ")
	buf.WriteString(c.Tree.String())
	buf.WriteByte('\n')

	for _, p := range c.Parents {
		buf.WriteString("parent ")
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}

	buf.WriteString("author ")
	c.Author.Encode(&buf)
	buf.WriteByte('\n')

	buf.WriteString("committer ")
	c.Committer.Encode(&buf)
	buf.WriteByte('\n')

	if c.Encoding != "" {
		buf.WriteString("encoding ")
		buf.WriteString(c.Encoding)
		buf.WriteByte('\n')
	}

	for _, h := range c.ExtraHeaders {
		lines := strings.Split(h, "\n")
		buf.WriteString(lines[0])
		buf.WriteByte('\n')
		for _, cont := range lines[1:] {
			buf.WriteByte(' ')
			buf.WriteString(cont)
			buf.WriteByte('\n')
		}
	}

	if c.PGPSignature != "" {
		buf.WriteString("gpgsig ")
		buf.WriteString(indentSignature(c.PGPSignature))
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.WriteString(c.Message)

	_, err := w.Write(buf.Bytes())
	return err
}

func indentSignature(sig string) string {
	lines := bytes.Split([]byte(sig), []byte("\n"))
	var out bytes.Buffer
	for i, l := range lines {
		if i > 0 {
			out.WriteString("\n ")
		}
		out.Write(l)
	}
	return out.String()
}
