/*
Command otinspect prints a summary of an OpenType font's table directory,
cmap coverage, and morx chains, and optionally drops into a small REPL for
looking up individual tags.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © Norbert Pillmayer <norbert@pillmayer.com>
*/
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/npillmayer/opentype/ot"
	"github.com/npillmayer/schuko/schukonf/testconfig"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/npillmayer/schuko/tracing/trace2go"
	"github.com/pterm/pterm"
)

// tracer traces with key 'tyse.fonts'
func tracer() tracing.Trace {
	return tracing.Select("tyse.fonts")
}

func setupTracing() {
	tracing.RegisterTraceAdapter("go", gologadapter.GetAdapter(), false)
	conf := testconfig.Conf{
		"tracing.adapter":  "go",
		"trace.tyse.fonts": "Error",
	}
	if err := trace2go.ConfigureRoot(conf, "trace", trace2go.ReplaceTracers(true)); err != nil {
		fmt.Println("error configuring tracing")
		os.Exit(1)
	}
	tracing.SetTraceSelector(trace2go.Selector())
}

func main() {
	setupTracing()
	if len(os.Args) < 2 {
		pterm.Error.Println("usage: otinspect <font-file> [--repl]")
		os.Exit(2)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		pterm.Error.Printfln("reading %s: %v", os.Args[1], err)
		os.Exit(1)
	}
	var otf *ot.Font
	if ot.IsCollection(data) {
		coll, err := ot.OpenCollection(data)
		if err != nil {
			pterm.Error.Printfln("opening collection: %v", err)
			os.Exit(1)
		}
		pterm.Info.Printfln("TrueType collection with %d font(s); inspecting font 0", coll.NumFonts())
		otf, err = coll.Get(0)
		if err != nil {
			pterm.Error.Printfln("parsing font 0 of collection: %v", err)
			os.Exit(1)
		}
	} else {
		otf, err = ot.Parse(data)
		if err != nil {
			pterm.Error.Printfln("parsing font: %v", err)
			os.Exit(1)
		}
	}

	printTableDirectory(otf)
	printCMapSummary(otf)
	printMorxSummary(otf)

	for _, arg := range os.Args[2:] {
		if arg == "--repl" {
			repl(otf)
			return
		}
	}
}

func printTableDirectory(otf *ot.Font) {
	tags := otf.TableTags()
	sort.Slice(tags, func(i, j int) bool { return tags[i].String() < tags[j].String() })
	rows := pterm.TableData{{"tag", "offset", "size"}}
	for _, tag := range tags {
		t := otf.Table(tag)
		off, size := t.Extent()
		rows = append(rows, []string{tag.String(), fmt.Sprintf("%d", off), fmt.Sprintf("%d", size)})
	}
	pterm.DefaultSection.Println("Table directory")
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func printCMapSummary(otf *ot.Font) {
	pterm.DefaultSection.Println("cmap coverage")
	if otf.CMap == nil {
		pterm.Warning.Println("no cmap table present")
		return
	}
	count := 0
	otf.CMap.Enumerate(func(r rune, gid ot.GlyphIndex) bool {
		count++
		return true
	})
	pterm.Info.Printfln("%d mapped code points", count)
}

func printMorxSummary(otf *ot.Font) {
	pterm.DefaultSection.Println("morx chains")
	if otf.Morx == nil {
		pterm.Info.Println("no morx table present")
		return
	}
	rows := pterm.TableData{{"chain", "subtable", "type"}}
	for ci, chain := range otf.Morx.Chains {
		for si, sub := range chain.Subtables {
			rows = append(rows, []string{
				fmt.Sprintf("%d", ci),
				fmt.Sprintf("%d", si),
				sub.Type.String(),
			})
		}
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// repl drops into an interactive loop where a user can type a table tag
// (e.g. "head", "OS/2") to see its raw byte length and offset, or "quit"
// to exit.
func repl(otf *ot.Font) {
	rl, err := readline.New("otinspect> ")
	if err != nil {
		pterm.Error.Printfln("starting readline: %v", err)
		return
	}
	defer rl.Close()
	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return
		}
		if err != nil {
			pterm.Error.Printfln("readline: %v", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		t := otf.Table(ot.T(line))
		if t == nil {
			pterm.Warning.Printfln("no table %q in font", line)
			continue
		}
		off, size := t.Extent()
		pterm.Info.Printfln("%s: offset=%d size=%d", line, off, size)
	}
}
