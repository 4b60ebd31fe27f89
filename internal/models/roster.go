package models

type Region string

const (
	RegionEurope       Region = "EU"
	RegionNorthAmerica Region = "NA"
	RegionSouthAmerica Region = "SA"
	RegionAsia         Region = "AS"
)

type PartyKind string

const (
	PartyTeam     PartyKind = "team"      // persistent team with its own team rating
	PartyMix      PartyKind = "mix"       // anonymous pool, split in half when matched against itself
	PartyDraftMix PartyKind = "draft_mix" // mix with captain draft before the split
)

type PositionCategory string

const (
	CategoryKeeper   PositionCategory = "keeper"
	CategoryDefense  PositionCategory = "defense"
	CategoryMidfield PositionCategory = "midfield"
	CategoryAttack   PositionCategory = "attack"
)

// FillerPlayerID is the sentinel identity for an anonymous stand-in slot.
// It may appear on both sides of a match without tripping duplicate-player
// validation and never accumulates a rating.
const FillerPlayerID = "filler"

type Player struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

func (p Player) IsFiller() bool {
	return p.ID == FillerPlayerID
}

type RosterSlot struct {
	Position string           `json:"position"`
	Category PositionCategory `json:"category"`
	Player   *Player          `json:"player,omitempty"`
}

// Roster is the live lineup of a party. Queue entries reference it by owner
// id; only matches embed frozen copies of it.
type Roster struct {
	OwnerID      string       `json:"ownerId" db:"owner_id"`
	Name         string       `json:"name" db:"name"`
	Kind         PartyKind    `json:"kind" db:"kind"`
	Region       Region       `json:"region" db:"region"`
	Size         int          `json:"size" db:"size"`
	TeamRating   int          `json:"teamRating" db:"team_rating"`
	Slots        []RosterSlot `json:"slots"`
	Bench        []Player     `json:"bench"`
	DraftEnabled bool         `json:"draftEnabled" db:"draft_enabled"`
}

// Players returns the players currently assigned to slots, fillers included.
func (r *Roster) Players() []Player {
	players := make([]Player, 0, len(r.Slots))
	for _, slot := range r.Slots {
		if slot.Player != nil {
			players = append(players, *slot.Player)
		}
	}
	return players
}

// HasPlayer reports whether a non-filler slot is held by the given player.
func (r *Roster) HasPlayer(playerID string) bool {
	if playerID == FillerPlayerID {
		return false
	}
	for _, slot := range r.Slots {
		if slot.Player != nil && slot.Player.ID == playerID {
			return true
		}
	}
	return false
}

// OpenSlots counts slots without an assigned player.
func (r *Roster) OpenSlots() int {
	open := 0
	for _, slot := range r.Slots {
		if slot.Player == nil {
			open++
		}
	}
	return open
}

// PromoteBench moves bench players into vacant slots, in bench order. Called
// after a match is finalized so the roster is ready for the next search cycle.
func (r *Roster) PromoteBench() {
	for i := range r.Slots {
		if len(r.Bench) == 0 {
			return
		}
		if r.Slots[i].Player == nil {
			player := r.Bench[0]
			r.Bench = r.Bench[1:]
			r.Slots[i].Player = &player
		}
	}
}

// Clone returns a deep copy, detached from the receiver.
func (r *Roster) Clone() *Roster {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Slots = make([]RosterSlot, len(r.Slots))
	for i, slot := range r.Slots {
		clone.Slots[i] = slot
		if slot.Player != nil {
			player := *slot.Player
			clone.Slots[i].Player = &player
		}
	}
	clone.Bench = make([]Player, len(r.Bench))
	copy(clone.Bench, r.Bench)
	return &clone
}

// SharesPlayerWith reports whether two rosters have a non-filler player in
// common. Used for duplicate-player validation at proposal and finalize time.
func (r *Roster) SharesPlayerWith(other *Roster) bool {
	for _, slot := range r.Slots {
		if slot.Player == nil || slot.Player.IsFiller() {
			continue
		}
		if other.HasPlayer(slot.Player.ID) {
			return true
		}
	}
	return false
}
