package decompose

import (
	"fmt"
	"strconv"
	"strings"
)

const systemPrompt = `Você é um assistente especializado em dividir tarefas complexas em subtarefas menores e gerenciáveis.

Dado uma tarefa e o tempo disponível, divida-a em 3-5 subtarefas específicas e acionáveis.
Para cada subtarefa, estime o tempo necessário em minutos de forma realista.
A soma dos tempos deve ser aproximadamente igual ao tempo total disponível.

Responda APENAS com um JSON array no seguinte formato:
[
  {"title": "Subtarefa 1", "estimated_minutes": 60},
  {"title": "Subtarefa 2", "estimated_minutes": 90}
]`

func userPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Tarefa: %s\n", req.TaskTitle)
	if req.TaskDescription != "" {
		fmt.Fprintf(&b, "Descrição: %s", req.TaskDescription)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Tempo disponível: %s horas (%s minutos)\n\n",
		formatNumber(req.AvailableHours), formatNumber(req.AvailableHours*60))
	b.WriteString("Divida esta tarefa em subtarefas menores com estimativas de tempo realistas.")

	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
