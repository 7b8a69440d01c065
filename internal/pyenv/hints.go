package pyenv

import (
	"bytes"
	"text/template"
)

var instructionsTemplate = template.Must(template.New("instructions").Parse(`# Installing Python {{.Req}} or newer

knl needs Python **{{.Req}}+**. None of the interpreters on this machine qualify.
Pick one of the options below, then run the installer again.

## 1. pyenv (per-user version manager)
{{if .Windows}}
` + "```powershell" + `
winget install pyenv-win.pyenv-win
pyenv install {{.Req}}
pyenv global {{.Req}}
` + "```" + `
{{else}}
` + "```sh" + `
curl -fsSL https://pyenv.run | bash
pyenv install {{.Req}}
pyenv global {{.Req}}
` + "```" + `
{{end}}
## 2. System package manager
{{if .Darwin}}
` + "```sh" + `
brew install python@{{.Req}}
` + "```" + `
{{else if .Windows}}
` + "```powershell" + `
winget install Python.Python.{{.Req}}
` + "```" + `
{{else}}
` + "```sh" + `
sudo apt install python{{.Req}} python{{.Req}}-venv   # Debian/Ubuntu
sudo dnf install python{{.Req}}                     # Fedora
` + "```" + `
{{end}}
## 3. Build from source (no admin rights required)
{{if .Windows}}
` + "```powershell" + `
git clone --branch {{.Req}} --depth 1 https://github.com/python/cpython.git
cd cpython
PCbuild\build.bat -p x64
` + "```" + `

The build needs Visual Studio with the C++ workload. The interpreter lands in
` + "`PCbuild\\amd64\\python.exe`" + `; choose "Enter the path" and point at it.
{{else}}
` + "```sh" + `
curl -fsSLO https://www.python.org/ftp/python/{{.Req}}.0/Python-{{.Req}}.0.tgz
tar xzf Python-{{.Req}}.0.tgz && cd Python-{{.Req}}.0
./configure --prefix="$HOME/.local" --enable-optimizations
make -j4 && make altinstall
` + "```" + `
{{end}}
## 4. Official installer

Download Python {{.Req}} from https://www.python.org/downloads/ and make sure
the interpreter ends up on your PATH.

## 5. Miniconda or micromamba

` + "```sh" + `
micromamba create -n knl python={{.Req}}
micromamba activate knl
` + "```" + `

Already installed somewhere unusual? Choose "Enter the path" and point at the
interpreter directly.
`))

// Instructions renders platform-specific acquisition guidance as markdown.
func Instructions(req Requirement, goos string) string {
	var buf bytes.Buffer
	data := struct {
		Req     string
		Darwin  bool
		Windows bool
	}{Req: req.String(), Darwin: goos == "darwin", Windows: goos == "windows"}
	if err := instructionsTemplate.Execute(&buf, data); err != nil {
		return "Install Python " + req.String() + " or newer from https://www.python.org/downloads/"
	}
	return buf.String()
}
