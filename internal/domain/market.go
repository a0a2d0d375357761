package domain

import (
	"fmt"
	"strings"
	"time"
)

// Market representa un mercado de predicción en Polymarket.
// Los mercados backtesteables son binarios: exactamente dos tokens (YES/NO).
type Market struct {
	ID          string // id de Gamma
	ConditionID string
	Question    string
	Slug        string
	EndDate     time.Time
	Volume24h   float64
	Tokens      []Token
	Active      bool
	Closed      bool
}

// Token es uno de los lados del mercado.
type Token struct {
	TokenID string
	Outcome string  // "Yes" | "No" tal cual lo devuelve la API
	Price   float64 // último precio conocido
}

// IsBinary devuelve true si el mercado tiene exactamente dos outcomes.
func (m Market) IsBinary() bool {
	return len(m.Tokens) == 2
}

// TokenFor busca el token de un outcome sin distinguir mayúsculas.
func (m Market) TokenFor(o Outcome) (Token, bool) {
	for _, t := range m.Tokens {
		if strings.EqualFold(strings.TrimSpace(t.Outcome), string(o)) {
			return t, true
		}
	}
	return Token{}, false
}

// YesToken devuelve el token YES del mercado, si existe.
func (m Market) YesToken() (Token, bool) {
	return m.TokenFor(OutcomeYes)
}

// Key devuelve el identificador preferido del mercado: id, o condition id si falta.
func (m Market) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ConditionID
}

// ValidateBinary devuelve ErrNonBinaryMarket si el mercado no tiene dos outcomes.
func (m Market) ValidateBinary() error {
	if !m.IsBinary() {
		return fmt.Errorf("%w: market %s has %d outcomes", ErrNonBinaryMarket, m.Key(), len(m.Tokens))
	}
	return nil
}

// HoursToResolution devuelve las horas hasta que el mercado se resuelve.
// Devuelve 0 si EndDate no está definido.
func (m Market) HoursToResolution() float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := time.Until(m.EndDate).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen caracteres.
// Si la pregunta está vacía usa los primeros caracteres del id como fallback.
func TruncateQuestion(question, id string, maxLen int) string {
	q := question
	if q == "" {
		if len(id) > 20 {
			q = id[:20] + "..."
		} else {
			q = id
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
