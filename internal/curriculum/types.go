package curriculum

// QuestionType tags how a grammar question is answered and checked.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	FillInBlank    QuestionType = "fill-in-blank"
	Transform      QuestionType = "transform"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, FillInBlank, Transform:
		return true
	}
	return false
}

// Unit represents a course unit loaded from YAML.
type Unit struct {
	ID               string            `yaml:"id" json:"id"`
	Title            string            `yaml:"title" json:"title"`
	Order            int               `yaml:"order" json:"order"`
	VocabularyRounds []VocabularyRound `yaml:"vocabulary_rounds" json:"vocabulary_rounds"`
	GrammarRounds    []GrammarRound    `yaml:"grammar_rounds" json:"grammar_rounds"`
}

// VocabularyRound is an ordered list of words practiced together.
type VocabularyRound struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Words []Word `yaml:"words" json:"words"`
}

// Word pairs an English word with its translation. The translation is shown
// to the learner and the English word is the expected answer.
type Word struct {
	ID          string `yaml:"id" json:"id"`
	Word        string `yaml:"word" json:"word"`
	Translation string `yaml:"translation" json:"translation"`
}

// GrammarRound is an ordered list of grammar questions.
type GrammarRound struct {
	ID        string     `yaml:"id" json:"id"`
	Title     string     `yaml:"title" json:"title"`
	Questions []Question `yaml:"questions" json:"questions"`
}

// Question is a single grammar exercise.
type Question struct {
	ID      string       `yaml:"id" json:"id"`
	Type    QuestionType `yaml:"type" json:"type"`
	Prompt  string       `yaml:"prompt" json:"prompt"`
	Answer  string       `yaml:"answer" json:"answer"`
	Choices []string     `yaml:"choices,omitempty" json:"choices,omitempty"`
}

// ItemKind discriminates the payload of an Item.
type ItemKind string

const (
	ItemWord     ItemKind = "word"
	ItemQuestion ItemKind = "question"
)

// Item is either a Word or a Question. Exactly one payload is set, matching Kind.
type Item struct {
	Kind     ItemKind  `json:"kind"`
	Word     *Word     `json:"word,omitempty"`
	Question *Question `json:"question,omitempty"`
}

// WordItem wraps a word.
func WordItem(w Word) Item {
	return Item{Kind: ItemWord, Word: &w}
}

// QuestionItem wraps a question.
func QuestionItem(q Question) Item {
	return Item{Kind: ItemQuestion, Question: &q}
}

// ID returns the payload's item id.
func (it Item) ID() string {
	switch it.Kind {
	case ItemWord:
		return it.Word.ID
	case ItemQuestion:
		return it.Question.ID
	}
	return ""
}

// Items returns the round's words as items, in round order.
func (r VocabularyRound) Items() []Item {
	items := make([]Item, 0, len(r.Words))
	for _, w := range r.Words {
		items = append(items, WordItem(w))
	}
	return items
}

// Items returns the round's questions as items, in round order.
func (r GrammarRound) Items() []Item {
	items := make([]Item, 0, len(r.Questions))
	for _, q := range r.Questions {
		items = append(items, QuestionItem(q))
	}
	return items
}

// VocabularyRound looks up a vocabulary round by ID.
func (u Unit) VocabularyRound(id string) (VocabularyRound, bool) {
	for _, r := range u.VocabularyRounds {
		if r.ID == id {
			return r, true
		}
	}
	return VocabularyRound{}, false
}

// GrammarRound looks up a grammar round by ID.
func (u Unit) GrammarRound(id string) (GrammarRound, bool) {
	for _, r := range u.GrammarRounds {
		if r.ID == id {
			return r, true
		}
	}
	return GrammarRound{}, false
}

// TestRoundID is the synthetic round ID under which a unit's manually graded
// test is stored.
func TestRoundID(unitID string) string {
	return unitID + "-test"
}
