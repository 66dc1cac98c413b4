package query

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/answer.md
var answerPromptRaw string

var answerPromptTmpl = template.Must(template.New("answer").Parse(answerPromptRaw))

type answerPromptInput struct {
	Persona string
	History string
	Context string
	Query   string
}

func buildAnswerPrompt(input answerPromptInput) (string, error) {
	var buf bytes.Buffer
	if err := answerPromptTmpl.Execute(&buf, input); err != nil {
		return "", goerr.Wrap(err, "failed to execute answer prompt template")
	}
	return buf.String(), nil
}
