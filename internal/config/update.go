package config

// Update is a partial runtime change, typically decoded from JSON. Nil or
// empty fields leave the current value in place.
type Update struct {
	Instruments             []string `json:"instruments,omitempty"`
	Jobs                    []Job    `json:"jobs,omitempty"`
	ADXThreshold            *float64 `json:"adx_threshold,omitempty"`
	RSIOverbought           *float64 `json:"rsi_overbought,omitempty"`
	RSIOversold             *float64 `json:"rsi_oversold,omitempty"`
	CooldownMinutes         *int     `json:"cooldown_minutes,omitempty"`
	CriticalImportanceFloor *int     `json:"critical_importance_floor,omitempty"`
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return len(u.Instruments) == 0 && len(u.Jobs) == 0 && u.ADXThreshold == nil &&
		u.RSIOverbought == nil && u.RSIOversold == nil && u.CooldownMinutes == nil &&
		u.CriticalImportanceFloor == nil
}

// WithUpdate returns a validated copy of c with u applied. c is not modified.
func (c Config) WithUpdate(u Update) (*Config, error) {
	next := c
	if len(u.Instruments) > 0 {
		next.Instruments = append([]string(nil), u.Instruments...)
	}
	if len(u.Jobs) > 0 {
		next.Jobs = append([]Job(nil), u.Jobs...)
	}
	if u.ADXThreshold != nil {
		next.ADXThreshold = *u.ADXThreshold
	}
	if u.RSIOverbought != nil {
		next.RSIOverbought = *u.RSIOverbought
	}
	if u.RSIOversold != nil {
		next.RSIOversold = *u.RSIOversold
	}
	if u.CooldownMinutes != nil {
		next.CooldownMinutes = *u.CooldownMinutes
	}
	if u.CriticalImportanceFloor != nil {
		next.CriticalImportanceFloor = *u.CriticalImportanceFloor
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}
