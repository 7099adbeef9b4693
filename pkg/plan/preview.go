package plan

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/yurifrl/bursar/pkg/models"
	"github.com/yurifrl/bursar/pkg/payer"
)

// Row is one card's slot in a dry-run preview. Card numbers are already
// masked by the time they land here.
type Row struct {
	Card   string `yaml:"card"`
	Expiry string `yaml:"expiry"`
	Amount string `yaml:"amount"`
}

// Plan previews a payment run at an assumed fee percent, without touching
// the portal.
type Plan struct {
	FeePercent string `yaml:"fee_percent"`
	CardValue  string `yaml:"card_value"`
	PayPerCard string `yaml:"pay_per_card"`
	Cards      []Row  `yaml:"cards"`
	TotalToPay string `yaml:"total_to_pay"`

	Target         string `yaml:"target,omitempty"`
	PaymentsNeeded int64  `yaml:"payments_needed,omitempty"`
}

// Build computes the per-card amount for the batch and, when a target is
// given, how many payments it takes to reach it.
func Build(batch []*models.Card, cardValue, feePercent decimal.Decimal, target *decimal.Decimal) *Plan {
	payPerCard := payer.AmountPerCard(cardValue, feePercent)

	p := &Plan{
		FeePercent: feePercent.String(),
		CardValue:  cardValue.StringFixed(2),
		PayPerCard: payPerCard.StringFixed(2),
	}

	for _, card := range batch {
		p.Cards = append(p.Cards, Row{
			Card:   card.Masked(),
			Expiry: card.Expiry(),
			Amount: payPerCard.StringFixed(2),
		})
	}
	p.TotalToPay = payPerCard.Mul(decimal.NewFromInt(int64(len(batch)))).StringFixed(2)

	if target != nil {
		p.Target = target.StringFixed(2)
		p.PaymentsNeeded = payer.EstimatePayments(*target, payPerCard)
	}
	return p
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	rowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	totalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
)

// Render returns the human-readable preview.
func (p *Plan) Render() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf(
		"Fee %s%% | card value %s | pay per card %s", p.FeePercent, p.CardValue, p.PayPerCard)))
	b.WriteString("\n")

	for i, row := range p.Cards {
		b.WriteString(rowStyle.Render(fmt.Sprintf(
			"[%d] %s exp %s -> %s", i+1, row.Card, row.Expiry, row.Amount)))
		b.WriteString("\n")
	}

	b.WriteString(totalStyle.Render(fmt.Sprintf(
		"Total: %s across %d card(s)", p.TotalToPay, len(p.Cards))))
	b.WriteString("\n")

	if p.Target != "" {
		b.WriteString(fmt.Sprintf("Target %s needs %d payment(s)\n", p.Target, p.PaymentsNeeded))
	}
	return b.String()
}

// YAML returns the machine-readable preview for scripting.
func (p *Plan) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}
