package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PriceType string

const (
	PriceFixed      PriceType = "fixed"
	PriceNegotiable PriceType = "negotiable"
	PriceFree       PriceType = "free"
)

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

type ListingStatus string

const (
	StatusActive  ListingStatus = "active"
	StatusExpired ListingStatus = "expired"
)

type Contact struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	PreferredMethod string `json:"preferred_method"`
}

type Location struct {
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	GeneralArea string `json:"general_area"`
}

// Listing is a classified record as it lives in the search index. Status
// only ever moves active -> expired; deletion removes the record outright
// rather than being modeled as a state.
type Listing struct {
	ObjectID    string        `json:"objectID"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Subcategory *string       `json:"subcategory"`
	Price       float64       `json:"price"`
	PriceType   PriceType     `json:"price_type"`
	Contact     Contact       `json:"contact"`
	Location    Location      `json:"location"`
	Images      []string      `json:"images"`
	Tags        []string      `json:"tags"`
	Condition   *Condition    `json:"condition"`
	Status      ListingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Source      string        `json:"source"`
	TaskID      *string       `json:"task_id"`
}

// TrackingEntry is the lightweight state-store pointer that lets the
// expiration sweep find candidates without scanning the whole index. It is
// stored under TrackingKey(id) with a TTL equal to the time left to expiry.
type TrackingEntry struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	TaskID    *string   `json:"task_id"`
}

// TrackingPrefix is the state-store key prefix for tracking entries.
const TrackingPrefix = "classified:"

func TrackingKey(id string) string {
	return TrackingPrefix + id
}

// NewListingID generates a listing identifier. The millisecond timestamp
// prefix keeps identifiers roughly sortable for traceability.
func NewListingID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("clf_%s_%s", strconv.FormatInt(time.Now().UnixMilli(), 36), suffix)
}

var (
	jsProtocolRe = regexp.MustCompile(`(?i)javascript:`)
	eventAttrRe  = regexp.MustCompile(`(?i)on\w+=`)
)

const maxTextLength = 1000

// SanitizeText strips angle brackets, script protocols and inline event
// handlers from caller-supplied text and caps its length.
func SanitizeText(text string) string {
	text = strings.NewReplacer("<", "", ">", "").Replace(text)
	text = jsProtocolRe.ReplaceAllString(text, "")
	text = eventAttrRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}
	return text
}
