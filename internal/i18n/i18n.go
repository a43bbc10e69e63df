// ABOUTME: Language selection (vi/en) and the handful of user-facing strings the client owns
// ABOUTME: Uses golang.org/x/text/language to match locale hints to a supported language

package i18n

import (
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
)

// Lang is a supported UI/backend language.
type Lang string

const (
	Vietnamese Lang = "vi"
	English    Lang = "en"

	// Default mirrors the backend's default language.
	Default = Vietnamese
)

var supported = []language.Tag{language.Vietnamese, language.English}

var matcher = language.NewMatcher(supported)

// Parse maps a language hint ("en", "en-US", "vi_VN.UTF-8") to a supported Lang.
// ok is false when nothing in s matched a supported language.
func Parse(s string) (lang Lang, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Default, false
	}
	// POSIX locales look like vi_VN.UTF-8; x/text wants BCP 47.
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")

	tag, err := language.Parse(s)
	if err != nil {
		return Default, false
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Default, false
	}
	if supported[idx] == language.English {
		return English, true
	}
	return Vietnamese, true
}

// FromEnv picks a language from LC_ALL, LC_MESSAGES or LANG.
func FromEnv() Lang {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if lang, ok := Parse(os.Getenv(key)); ok {
			return lang
		}
	}
	return Default
}

// Valid reports whether s is exactly one of the backend language codes.
func Valid(s string) bool {
	return s == string(Vietnamese) || s == string(English)
}

// Selector holds the current language and is safe for concurrent use.
type Selector struct {
	v atomic.Value
}

// NewSelector creates a Selector starting at lang.
func NewSelector(lang Lang) *Selector {
	s := &Selector{}
	s.Set(lang)
	return s
}

// Get returns the current language.
func (s *Selector) Get() Lang {
	if lang, ok := s.v.Load().(Lang); ok {
		return lang
	}
	return Default
}

// Set changes the current language. Unsupported values fall back to Default.
func (s *Selector) Set(lang Lang) {
	if !Valid(string(lang)) {
		lang = Default
	}
	s.v.Store(lang)
}

// Key identifies a client-owned string.
type Key string

const (
	KeyFailureNotice   Key = "failure_notice"
	KeyThinking        Key = "thinking"
	KeyNoConversations Key = "no_conversations"
	KeyConfirmDelete   Key = "confirm_delete"
	KeyDeleted         Key = "conversation_deleted"
	KeyLoadFailed      Key = "load_failed"
	KeyRefreshFailed   Key = "refresh_failed"
	KeyDeleteFailed    Key = "delete_failed"
	KeyNewChat         Key = "new_chat"
	KeyYou             Key = "you"
	KeyGuide           Key = "guide"
	KeySuggestions     Key = "suggestions"
	KeyLinks           Key = "links"
	KeyWelcomeTitle    Key = "welcome_title"
	KeyWelcomeSubtitle Key = "welcome_subtitle"
	KeyNoDestinations  Key = "no_destinations"
	KeyMessages        Key = "messages"
	KeyCancelled       Key = "deletion_cancelled"
	KeyLanguageChanged Key = "language_changed"
)

var catalog = map[Lang]map[Key]string{
	Vietnamese: {
		KeyFailureNotice:   "Xin lỗi, có lỗi xảy ra. Vui lòng thử lại sau.",
		KeyThinking:        "Đang suy nghĩ...",
		KeyNoConversations: "Chưa có cuộc trò chuyện",
		KeyConfirmDelete:   "Bạn có chắc chắn muốn xóa cuộc trò chuyện này?",
		KeyDeleted:         "Đã xóa cuộc trò chuyện",
		KeyLoadFailed:      "Không thể tải cuộc trò chuyện",
		KeyRefreshFailed:   "Không thể tải lịch sử trò chuyện",
		KeyDeleteFailed:    "Không thể xóa cuộc trò chuyện",
		KeyNewChat:         "Cuộc trò chuyện mới",
		KeyYou:             "Bạn",
		KeyGuide:           "Hướng dẫn viên",
		KeySuggestions:     "Câu hỏi gợi ý",
		KeyLinks:           "Liên kết",
		KeyWelcomeTitle:    "Xin chào! Tôi là hướng dẫn viên du lịch Việt Nam",
		KeyWelcomeSubtitle: "Hỏi tôi bất cứ điều gì về điểm đến, ẩm thực và lịch trình",
		KeyNoDestinations:  "Không tìm thấy điểm đến",
		KeyMessages:        "tin nhắn",
		KeyCancelled:       "Đã hủy xóa",
		KeyLanguageChanged: "Đã chuyển sang tiếng Việt",
	},
	English: {
		KeyFailureNotice:   "Sorry, an error occurred. Please try again later.",
		KeyThinking:        "Thinking...",
		KeyNoConversations: "No conversations yet",
		KeyConfirmDelete:   "Are you sure you want to delete this conversation?",
		KeyDeleted:         "Conversation deleted",
		KeyLoadFailed:      "Could not load the conversation",
		KeyRefreshFailed:   "Could not load conversation history",
		KeyDeleteFailed:    "Could not delete the conversation",
		KeyNewChat:         "New Chat",
		KeyYou:             "You",
		KeyGuide:           "Guide",
		KeySuggestions:     "Suggested questions",
		KeyLinks:           "Links",
		KeyWelcomeTitle:    "Hello! I'm your Vietnam travel guide",
		KeyWelcomeSubtitle: "Ask me anything about destinations, food and itineraries",
		KeyNoDestinations:  "No destinations found",
		KeyMessages:        "messages",
		KeyCancelled:       "Deletion cancelled",
		KeyLanguageChanged: "Switched to English",
	},
}

// T returns the string for key in lang, or the key itself when missing.
func T(lang Lang, key Key) string {
	if table, ok := catalog[lang]; ok {
		if s, ok := table[key]; ok {
			return s
		}
	}
	return string(key)
}

// FailureNotice is the generic assistant-style message shown when a send fails.
func FailureNotice(lang Lang) string {
	return T(lang, KeyFailureNotice)
}
