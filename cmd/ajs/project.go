package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/AntelopeJS/antelopejs-sub002/config"
	"github.com/AntelopeJS/antelopejs-sub002/fsx"
)

type projectCommand struct{}

func (c *projectCommand) Name() string      { return "project" }
func (c *projectCommand) Args() string      { return "modules {list,add,install,update} ..." }
func (c *projectCommand) ShortHelp() string { return "inspect and manage the project's module list" }
func (c *projectCommand) LongHelp() string {
	return "project modules list              print every configured module and its source\n" +
		"project modules add <id> <version>  add or update a package-shorthand module entry\n" +
		"project modules install             acquire every configured module into the cache\n" +
		"project modules update [id]          re-acquire one module (or all) ignoring the cache"
}
func (c *projectCommand) Register(*flag.FlagSet) {}

func (c *projectCommand) Run(args []string) error {
	if len(args) < 2 || args[0] != "modules" {
		return fmt.Errorf("expected \"modules\" subcommand, see `ajs project -h`")
	}
	switch args[1] {
	case "list":
		return projectModulesList()
	case "add":
		if len(args) < 4 {
			return fmt.Errorf("usage: project modules add <id> <version>")
		}
		return projectModulesAdd(args[2], args[3])
	case "install":
		return projectModulesInstall()
	case "update":
		var id string
		if len(args) > 2 {
			id = args[2]
		}
		return projectModulesUpdate(id)
	default:
		return fmt.Errorf("unknown modules subcommand %q", args[1])
	}
}

func projectModulesList() error {
	projectFolder, err := projectFolderFromWD()
	if err != nil {
		return err
	}
	resolved, err := config.Resolve(fsx.OS{}, projectFolder, "")
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(resolved.Modules))
	for id := range resolved.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		mc := resolved.Modules[id]
		fmt.Printf("%s\t%s\t%s\n", id, mc.Source.Type, mc.Source.Version)
	}
	return nil
}

func projectModulesAdd(id, version string) error {
	projectFolder, err := projectFolderFromWD()
	if err != nil {
		return err
	}
	fs := fsx.OS{}
	path := filepath.Join(projectFolder, config.FileName)

	raw, err := fs.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	modules, _ := doc["modules"].(map[string]interface{})
	if modules == nil {
		modules = map[string]interface{}{}
	}
	modules[id] = version
	doc["modules"] = modules

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if err := fs.WriteFile(path, out, 0o644); err != nil {
		return err
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(raw), string(out), false)
	fmt.Print(dmp.DiffPrettyText(diffs))
	logf("added module %s@%s to %s", id, version, config.FileName)
	return nil
}

func projectModulesInstall() error {
	projectFolder, err := projectFolderFromWD()
	if err != nil {
		return err
	}
	rt, err := newRuntime(projectFolder, "")
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.loadAll(); err != nil {
		return err
	}
	logf("installed %d modules", len(rt.manager.ListModules()))
	return nil
}

func projectModulesUpdate(id string) error {
	projectFolder, err := projectFolderFromWD()
	if err != nil {
		return err
	}
	rt, err := newRuntime(projectFolder, "")
	if err != nil {
		return err
	}
	defer rt.close()

	requests := rt.requests()
	updated := 0
	for i := range requests {
		if id != "" && requests[i].ID != id {
			continue
		}
		requests[i].Source.IgnoreCache = true
		updated++
	}
	if id != "" && updated == 0 {
		return fmt.Errorf("no configured module %q", id)
	}

	if err := rt.manager.AddModules(requests); err != nil {
		return err
	}
	if err := rt.manager.EnsureGraphValid(); err != nil {
		return err
	}
	logf("updated %d module(s)", updated)
	return nil
}
