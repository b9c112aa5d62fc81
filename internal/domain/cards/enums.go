package cards

// CardType discriminates which typed payload shape a study card carries.
type CardType string

const (
	CardTypeMcqSingle CardType = "mcq_single"
	CardTypeMcqMulti  CardType = "mcq_multi"
	CardTypeWritten   CardType = "written"
	CardTypeTrueFalse CardType = "true_false"
	CardTypeCloze     CardType = "cloze"
	CardTypeEmq       CardType = "emq"
	CardTypeNote      CardType = "note"
	CardTypeFlashcard CardType = "flashcard"
)

// IsQuestion reports whether the card expects an answer from the learner.
// Notes and flashcards are passive review content.
func (t CardType) IsQuestion() bool {
	switch t {
	case CardTypeMcqSingle, CardTypeMcqMulti, CardTypeWritten, CardTypeTrueFalse, CardTypeCloze, CardTypeEmq:
		return true
	default:
		return false
	}
}

// IsValid reports whether the value is one of the known card types.
func (t CardType) IsValid() bool {
	switch t {
	case CardTypeMcqSingle, CardTypeMcqMulti, CardTypeWritten, CardTypeTrueFalse,
		CardTypeCloze, CardTypeEmq, CardTypeNote, CardTypeFlashcard:
		return true
	default:
		return false
	}
}

// AllCardTypes lists every known card type in declaration order.
func AllCardTypes() []CardType {
	return []CardType{
		CardTypeMcqSingle,
		CardTypeMcqMulti,
		CardTypeWritten,
		CardTypeTrueFalse,
		CardTypeCloze,
		CardTypeEmq,
		CardTypeNote,
		CardTypeFlashcard,
	}
}
