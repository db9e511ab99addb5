package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"rifc/parser"
	"rifc/rif"
	"rifc/rifmux"
)

// rifc compiles a register interface description and writes the elaborated
// model as YAML for the downstream generators.
//
//	rifc [-I dir]... [-D name=value]... [-o out.yaml] file.rif

type stringList []string

func (list *stringList) String() string {
	return strings.Join(*list, ",")
}

func (list *stringList) Set(value string) error {
	*list = append(*list, value)
	return nil
}

var (
	includePath stringList
	overrides   stringList
	outputPath  = flag.String("o", "", "the output yaml file path, default stdout")
)

func main() {
	flag.Var(&includePath, "I", "a directory searched for included rif files, repeatable")
	flag.Var(&overrides, "D", "a name=value parameter override, repeatable")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rifc [-I dir]... [-D name=value]... [-o out.yaml] file.rif")
		os.Exit(2)
	}
	inputPath := flag.Arg(0)
	overrideMap, err := parseOverrides(overrides)
	if err != nil {
		fail(err)
	}
	compiler := rif.NewCompiler(includePath, overrideMap)
	out, err := compile(compiler, inputPath)
	if err != nil {
		fail(err)
	}
	for _, warning := range compiler.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if *outputPath == "" {
		os.Stdout.Write(out)
		return
	}
	if err := os.WriteFile(*outputPath, out, 0644); err != nil {
		fail(fmt.Errorf("failed to save to path %s: %v", *outputPath, err))
	}
}

// compile handles both plain rif files and rifmux maps: a mux compiles its
// member units through the same compiler, then composes their addresses.
func compile(compiler *rif.Compiler, inputPath string) ([]byte, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %v", inputPath, err)
	}
	tree, err := parser.ParseTree(inputPath, file)
	file.Close()
	if err != nil {
		return nil, err
	}
	if !rifmux.IsMuxTree(tree) {
		compiled, err := compiler.CompileFile(inputPath)
		if err != nil {
			return nil, err
		}
		return rif.DumpYAML(compiled)
	}
	mux, err := rifmux.Parse(tree)
	if err != nil {
		return nil, err
	}
	if err := compileMuxUnits(compiler, inputPath, mux.Entries); err != nil {
		return nil, err
	}
	composer := &rifmux.Composer{Lookup: compiler}
	if err := composer.Compose(mux); err != nil {
		return nil, err
	}
	return rifmux.DumpYAML(mux)
}

func compileMuxUnits(compiler *rif.Compiler, muxPath string, entries []*rifmux.Entry) error {
	for _, entry := range flattenEntries(entries) {
		if entry.External || entry.Type == "" {
			continue
		}
		if _, err := compiler.Unit(entry.Type); err == nil {
			continue
		}
		unitPath, err := compiler.FindUnitFile(entry.Type, muxPath)
		if err != nil {
			return err
		}
		if _, err := compiler.CompileFile(unitPath); err != nil {
			return err
		}
	}
	return nil
}

func flattenEntries(entries []*rifmux.Entry) []*rifmux.Entry {
	var flat []*rifmux.Entry
	for _, entry := range entries {
		if len(entry.Entries) > 0 {
			flat = append(flat, flattenEntries(entry.Entries)...)
			continue
		}
		flat = append(flat, entry)
	}
	return flat
}

func parseOverrides(pairs []string) (map[string]string, error) {
	overrideMap := map[string]string{}
	for _, pair := range pairs {
		eq := strings.Index(pair, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("override %q needs the form name=value", pair)
		}
		overrideMap[pair[:eq]] = pair[eq+1:]
	}
	return overrideMap, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
