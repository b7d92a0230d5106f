package aibridge

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(promptFS, "prompts/*.tmpl"))

// analysisThreshold is the overview length above which the overview is
// treated as a stored AI project analysis rather than user-written info.
const analysisThreshold = 200

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

func renderGeneratePrompt(in GenerateInput) (string, error) {
	return render("generate.tmpl", struct {
		GenerateInput
		Min, Max int
	}{in, MinGeneratedBlocks, MaxGeneratedBlocks})
}

func renderArrangePrompt(in ArrangeInput) (string, error) {
	data := struct {
		ArrangeInput
		Analysis string
		HasInfo  bool
	}{ArrangeInput: in}

	if len(in.ProjectOverview) > analysisThreshold {
		data.Analysis = in.ProjectOverview
	} else {
		data.HasInfo = in.ProjectOverview != "" || in.CurrentStatus != "" ||
			in.Problems != "" || in.AdditionalInfo != ""
	}
	return render("arrange.tmpl", data)
}
