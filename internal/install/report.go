package install

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"knlsetup/internal/crumbs"
	"knlsetup/internal/hostenv"
	"knlsetup/internal/launcher"
	"knlsetup/internal/pyenv"
	"knlsetup/internal/topology"
)

// TasksDir holds the application's per-task state, relative to cwd.
var TasksDir = filepath.Join(".knowledge", "tasks")

// Report summarises a finished installation.
type Report struct {
	Root              string             `json:"root"`
	Topology          topology.Topology  `json:"topology"`
	Requirement       pyenv.Requirement  `json:"requirement"`
	Runtime           *pyenv.Candidate   `json:"runtime,omitempty"`
	Provenance        string             `json:"provenance"`
	Launchers         []launcher.Binding `json:"launchers"`
	PathUpdated       bool               `json:"path_updated"`
	RCFile            string             `json:"rc_file,omitempty"`
	ShellInstructions string             `json:"shell_instructions,omitempty"`
	Crumbs            crumbs.Summary     `json:"crumbs"`
	Warnings          []string           `json:"warnings,omitempty"`
	NextSteps         []string           `json:"next_steps"`
}

// Task is one entry of prior application state.
type Task struct {
	ID      string
	ModTime int64
}

// ExistingTasks lists the task entries under cwd, most recently modified
// first. A missing directory yields no tasks.
func ExistingTasks(fs afero.Fs, env hostenv.Environment) []Task {
	entries, err := afero.ReadDir(fs, filepath.Join(env.Cwd, TasksDir))
	if err != nil {
		return nil
	}
	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		if e.Name() == "" || e.Name()[0] == '.' {
			continue
		}
		tasks = append(tasks, Task{ID: e.Name(), ModTime: e.ModTime().UnixNano()})
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].ModTime != tasks[j].ModTime {
			return tasks[i].ModTime > tasks[j].ModTime
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

// NextSteps builds the numbered follow-up list shown after an install.
func NextSteps(fs afero.Fs, env hostenv.Environment, bound launcher.Result) []string {
	var steps []string
	if bound.PathUpdated && bound.RCFile != "" {
		steps = append(steps, fmt.Sprintf("Restart your shell or run: source %s", bound.RCFile))
	} else if bound.Instructions != "" && !bound.AlreadyOnPath {
		steps = append(steps, "Put the launchers on PATH: "+bound.Dir)
	}

	if tasks := ExistingTasks(fs, env); len(tasks) > 0 {
		steps = append(steps,
			"Resume your most recent task: knl task show "+tasks[0].ID,
			fmt.Sprintf("List all %d tasks: knl task list", len(tasks)),
		)
	} else {
		steps = append(steps, "Initialize: knl init")
	}
	return append(steps, "Explore the commands: knl --help")
}
