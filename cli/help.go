// Copyright (c) 2023, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package cli

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

const (
	defaultTermWidth = 80
	topicIndent      = "  "
)

//go:embed README.md
var cliHelpFile string

// helpTopic is the "### <command>" section of the help file for one command.
type helpTopic struct {
	summary string
	lines   []string
}

// Help renders the console help from the embedded help file, wrapped to the terminal width.
type Help struct {
	termWidth uint
	topics    map[string]*helpTopic
}

func newHelp() Help {
	return Help{
		termWidth: defaultTermWidth,
		topics:    parseHelpFile(cliHelpFile),
	}
}

// update takes the width of the terminal ot-ctl runs in. Output to a pipe keeps the default width.
func (help *Help) update() {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	if width, _, err := term.GetSize(fd); err == nil && width > 20 {
		help.termWidth = uint(width)
	}
}

func (help *Help) commandNames() []string {
	names := make([]string, 0, len(help.topics))
	for name := range help.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// outputGeneralHelp lists every command with the first sentence of its help.
func (help *Help) outputGeneralHelp() string {
	help.update()
	var sb strings.Builder
	for _, name := range help.commandNames() {
		sb.WriteString(fmt.Sprintf("%-15s %s\n", name, help.topics[name].summary))
	}
	sb.WriteString(wordwrap.WrapString("\nFor detailed help per command, use: 'help <command>'\n", help.termWidth))
	return sb.String()
}

// outputCommandHelp returns the full help of command, or an error for unknown commands.
func (help *Help) outputCommandHelp(command string) (string, error) {
	topic, ok := help.topics[command]
	if !ok {
		return "", errors.Errorf("unknown command: %s", command)
	}
	help.update()

	var sb strings.Builder
	sb.WriteString(command + "\n")
	width := help.termWidth - uint(len(topicIndent))
	for _, line := range topic.lines {
		if strings.HasPrefix(line, " ") {
			// example and definition lines are not wrapped
			sb.WriteString(topicIndent + line + "\n")
			continue
		}
		for _, wrapped := range strings.Split(wordwrap.WrapString(line, width), "\n") {
			sb.WriteString(topicIndent + wrapped + "\n")
		}
	}
	return sb.String(), nil
}

// parseHelpFile splits the markdown help file into topics. Fenced blocks become indented "Example:" or
// "Definition:" paragraphs.
func parseHelpFile(text string) map[string]*helpTopic {
	topics := map[string]*helpTopic{}
	var topic *helpTopic
	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "### "):
			topic = &helpTopic{}
			topics[strings.TrimSpace(trimmed[4:])] = topic
			inBlock = false
			continue
		case topic == nil:
			continue
		case trimmed == "```bash":
			topic.lines = append(topic.lines, "", "Example:")
			inBlock = true
			continue
		case trimmed == "```shell":
			topic.lines = append(topic.lines, "", "Definition:")
			inBlock = true
			continue
		case trimmed == "```":
			inBlock = false
			continue
		}

		if inBlock {
			topic.lines = append(topic.lines, "    "+line)
			continue
		}
		if trimmed == "" {
			continue
		}
		text := strings.ReplaceAll(trimmed, "`", "")
		topic.lines = append(topic.lines, text)
		if topic.summary == "" {
			topic.summary = firstSentence(text)
		}
	}
	return topics
}

func firstSentence(text string) string {
	if idx := strings.Index(text, ". "); idx > 0 {
		return text[:idx+1]
	}
	return text
}
