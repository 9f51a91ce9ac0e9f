package domain

// Difficulty grades a pose.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// Difficulties lists difficulty levels in ascending order.
var Difficulties = []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}

// Category groups poses by body position.
type Category string

const (
	CategoryStanding   Category = "Standing"
	CategorySitting    Category = "Sitting"
	CategoryBalancing  Category = "Balancing"
	CategoryLying      Category = "Lying"
	CategoryMeditation Category = "Meditation"
)

// Categories lists all pose categories.
var Categories = []Category{CategoryStanding, CategorySitting, CategoryBalancing, CategoryLying, CategoryMeditation}

// Pose is a catalog entry with its reference joint angles.
type Pose struct {
	ID             string     `json:"id" yaml:"id"`
	NameEn         string     `json:"nameEn" yaml:"nameEn"`
	NameHi         string     `json:"nameHi" yaml:"nameHi"`
	Difficulty     Difficulty `json:"difficulty" yaml:"difficulty"`
	Category       Category   `json:"category" yaml:"category"`
	Description    string     `json:"description" yaml:"description"`
	Benefits       []string   `json:"benefits" yaml:"benefits"`
	Precautions    []string   `json:"precautions" yaml:"precautions"`
	Duration       string     `json:"duration" yaml:"duration"`
	Breathing      string     `json:"breathing" yaml:"breathing"`
	CommonMistakes []string   `json:"commonMistakes" yaml:"commonMistakes"`
	Image          string     `json:"image" yaml:"image"`
	IdealAngles    AngleMap   `json:"idealAngles" yaml:"idealAngles"`
}
