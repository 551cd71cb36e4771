// Package state defines the structured table snapshot: cards, seats,
// betting figures, the street, and the change-detection signature that
// decides whether a snapshot is worth broadcasting.
package state

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Ranks and suits use the conventional single-letter encoding ("As", "Td").
const (
	Ranks = "23456789TJQKA"
	Suits = "shdc"
)

// Card is a playing card. Zero value means "no card".
type Card struct {
	Rank byte
	Suit byte
}

// ParseCard parses "As", "Td", "9h" style notation (case-insensitive suit,
// "10" accepted for ten).
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "10") {
		s = "T" + s[2:]
	}
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	rank := byte(strings.ToUpper(s[:1])[0])
	suit := byte(strings.ToLower(s[1:])[0])
	if !strings.ContainsRune(Ranks, rune(rank)) {
		return Card{}, fmt.Errorf("invalid rank in %q", s)
	}
	if !strings.ContainsRune(Suits, rune(suit)) {
		return Card{}, fmt.Errorf("invalid suit in %q", s)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// String renders the card as two characters, e.g. "As".
func (c Card) String() string {
	if c.IsZero() {
		return "??"
	}
	return string(c.Rank) + string(c.Suit)
}

// IsZero reports whether the card is unset.
func (c Card) IsZero() bool { return c.Rank == 0 || c.Suit == 0 }

// IsRed reports whether the suit is hearts or diamonds.
func (c Card) IsRed() bool { return c.Suit == 'h' || c.Suit == 'd' }

// MarshalJSON encodes the card as its two-character string.
func (c Card) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON decodes a two-character card string.
func (c *Card) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	card, err := ParseCard(s)
	if err != nil {
		return err
	}
	*c = card
	return nil
}

// Stage is the current street.
type Stage string

const (
	StagePreflop Stage = "preflop"
	StageFlop    Stage = "flop"
	StageTurn    Stage = "turn"
	StageRiver   Stage = "river"
)

// StageForBoard maps a board-card count to its street. ok is false for
// counts that no legal street produces.
func StageForBoard(n int) (Stage, bool) {
	switch n {
	case 0:
		return StagePreflop, true
	case 3:
		return StageFlop, true
	case 4:
		return StageTurn, true
	case 5:
		return StageRiver, true
	default:
		return StagePreflop, false
	}
}

// SeatInfo is one seat's snapshot. Built fresh every capture cycle and
// never mutated afterwards.
type SeatInfo struct {
	SeatNumber      int     `json:"seat_number"`
	IsActive        bool    `json:"is_active"`
	IsHero          bool    `json:"is_hero"`
	PlayerName      string  `json:"player_name,omitempty"`
	StackSize       float64 `json:"stack_size,omitempty"`
	Cards           []Card  `json:"cards,omitempty"`
	Action          string  `json:"action,omitempty"`
	BetAmount       float64 `json:"bet_amount,omitempty"`
	Position        string  `json:"position,omitempty"`
	HasDealerButton bool    `json:"has_dealer_button"`
	IsSmallBlind    bool    `json:"is_small_blind"`
	IsBigBlind      bool    `json:"is_big_blind"`
	Confidence      float64 `json:"confidence"`
}

// TableState is the structured snapshot of one capture cycle.
type TableState struct {
	PotSize          float64    `json:"pot_size"`
	CurrentBet       float64    `json:"current_bet"`
	BigBlind         float64    `json:"big_blind,omitempty"`
	SmallBlind       float64    `json:"small_blind,omitempty"`
	HeroCards        []Card     `json:"hero_cards"`
	BoardCards       []Card     `json:"board_cards"`
	Seats            []SeatInfo `json:"seats"`
	Stage            Stage      `json:"stage"`
	HeroSeat         int        `json:"hero_seat,omitempty"`
	DealerSeat       int        `json:"dealer_seat,omitempty"`
	ActivePlayers    int        `json:"active_players"`
	Timestamp        time.Time  `json:"timestamp"`
	Confidence       float64    `json:"confidence"`
	HashSignature    string     `json:"hash_signature"`
	Calibrated       bool       `json:"calibrated"`
	ValidationErrors []string   `json:"validation_errors,omitempty"`
}

// ActiveSeatNumbers returns the sorted numbers of active seats.
func (s *TableState) ActiveSeatNumbers() []int {
	var nums []int
	for _, seat := range s.Seats {
		if seat.IsActive {
			nums = append(nums, seat.SeatNumber)
		}
	}
	sort.Ints(nums)
	return nums
}

// Signature computes the deterministic digest over the fields that matter
// for change detection: pot, current bet, hero and board cards, stage,
// dealer seat and the set of active seats. Timestamp and confidence are
// deliberately excluded so two captures of the same table compare equal.
func (s *TableState) Signature() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pot=%.2f|bet=%.2f|stage=%s|dealer=%d", s.PotSize, s.CurrentBet, s.Stage, s.DealerSeat)

	b.WriteString("|hero=")
	b.WriteString(joinCards(s.HeroCards))
	b.WriteString("|board=")
	b.WriteString(joinCards(s.BoardCards))

	b.WriteString("|active=")
	for i, n := range s.ActiveSeatNumbers() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", n)
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func joinCards(cards []Card) string {
	ss := make([]string, 0, len(cards))
	for _, c := range cards {
		ss = append(ss, c.String())
	}
	sort.Strings(ss)
	return strings.Join(ss, ",")
}

// Validate checks the structural invariants and returns every violation.
// Violations never discard a state; callers fold them into confidence.
func (s *TableState) Validate() []string {
	var violations []string

	if _, ok := StageForBoard(len(s.BoardCards)); !ok {
		violations = append(violations,
			fmt.Sprintf("board has %d cards, want 0, 3, 4 or 5", len(s.BoardCards)))
	} else if want, _ := StageForBoard(len(s.BoardCards)); s.Stage != want {
		violations = append(violations,
			fmt.Sprintf("stage %s inconsistent with %d board cards", s.Stage, len(s.BoardCards)))
	}

	if len(s.HeroCards) > 2 {
		violations = append(violations,
			fmt.Sprintf("hero has %d cards, want at most 2", len(s.HeroCards)))
	}

	seen := make(map[Card]bool)
	for _, c := range append(append([]Card{}, s.HeroCards...), s.BoardCards...) {
		if c.IsZero() {
			continue
		}
		if seen[c] {
			violations = append(violations, fmt.Sprintf("card %s appears twice", c))
		}
		seen[c] = true
	}

	if s.HeroSeat != 0 {
		found := false
		for _, seat := range s.Seats {
			if seat.SeatNumber == s.HeroSeat {
				found = true
				break
			}
		}
		if !found {
			violations = append(violations,
				fmt.Sprintf("hero seat %d not among configured seats", s.HeroSeat))
		}
	}

	return violations
}

// Per-violation confidence penalty and the floor below which a state
// still publishes but is effectively untrusted.
const (
	ViolationPenalty = 0.15
	ConfidenceFloor  = 0.05
)

// Seal finalizes a freshly assembled state: derives the stage from the
// board, validates, folds violations into confidence and computes the
// signature. Call exactly once; the state is immutable afterwards.
func (s *TableState) Seal(now time.Time) {
	s.Timestamp = now
	if stage, ok := StageForBoard(len(s.BoardCards)); ok {
		s.Stage = stage
	}
	s.ActivePlayers = len(s.ActiveSeatNumbers())

	s.ValidationErrors = s.Validate()
	for range s.ValidationErrors {
		s.Confidence -= ViolationPenalty
	}
	if s.Confidence < ConfidenceFloor {
		s.Confidence = ConfidenceFloor
	}

	s.HashSignature = s.Signature()
}
