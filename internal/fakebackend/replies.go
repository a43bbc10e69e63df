// ABOUTME: Canned assistant replies for the fake backend
// ABOUTME: Picks a topic by keyword and answers in the request language with follow-ups and links

package fakebackend

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/2389/vnguide/internal/api"
)

type topic struct {
	keywords  []string
	answer    [2]string // vi, en
	followUps [2][]string
	link      api.Link
}

var topics = []topic{
	{
		keywords: []string{"hội an", "hoi an"},
		answer: [2]string{
			"**Hội An** là phố cổ di sản UNESCO nổi tiếng với đèn lồng, Chùa Cầu và món *cao lầu*.",
			"**Hoi An** is a UNESCO heritage town known for its lanterns, the Japanese Bridge and *cao lau* noodles.",
		},
		followUps: [2][]string{
			{"Thời điểm nào đẹp nhất để đến Hội An?", "Nên ở đâu tại Hội An?"},
			{"When is the best time to visit Hoi An?", "Where should I stay in Hoi An?"},
		},
		link: api.Link{Title: "Hoi An", URL: "https://www.google.com/maps/search/Hoi+An", Type: "map"},
	},
	{
		keywords: []string{"sa pa", "sapa"},
		answer: [2]string{
			"**Sa Pa** có ruộng bậc thang tuyệt đẹp. Tuyến trekking phổ biến:\n\n- Cát Cát\n- Lao Chải\n- Tả Van",
			"**Sa Pa** has stunning rice terraces. Popular treks:\n\n- Cat Cat\n- Lao Chai\n- Ta Van",
		},
		followUps: [2][]string{
			{"Trekking Sa Pa mất bao lâu?", "Có cần hướng dẫn viên không?"},
			{"How long does a Sa Pa trek take?", "Do I need a guide?"},
		},
		link: api.Link{Title: "Sa Pa", URL: "https://www.google.com/maps/search/Sa+Pa", Type: "map"},
	},
	{
		keywords: []string{"phú quốc", "phu quoc"},
		answer: [2]string{
			"**Phú Quốc** là đảo ngọc với Bãi Sao và cáp treo Hòn Thơm.",
			"**Phu Quoc** is the pearl island with Sao Beach and the Hon Thom cable car.",
		},
		followUps: [2][]string{
			{"Phú Quốc có mùa mưa không?", "Nên thuê xe máy ở Phú Quốc?"},
			{"Does Phu Quoc have a rainy season?", "Should I rent a scooter on Phu Quoc?"},
		},
		link: api.Link{Title: "Phu Quoc", URL: "https://www.google.com/maps/search/Phu+Quoc", Type: "map"},
	},
	{
		keywords: []string{"hà nội", "ha noi", "hanoi"},
		answer: [2]string{
			"Ở **Hà Nội** bạn nên thử phở, bún chả và cà phê trứng.",
			"In **Hanoi** try pho, bun cha and egg coffee.",
		},
		followUps: [2][]string{
			{"Phở ngon nhất ở đâu?", "Phố cổ có gì chơi buổi tối?"},
			{"Where is the best pho?", "What is there to do in the Old Quarter at night?"},
		},
		link: api.Link{Title: "Hanoi", URL: "https://www.google.com/maps/search/Hanoi", Type: "map"},
	},
}

var fallback = topic{
	answer: [2]string{
		"Việt Nam có rất nhiều điểm đến thú vị từ Bắc vào Nam. Bạn quan tâm đến vùng nào?",
		"Vietnam has wonderful destinations from north to south. Which region interests you?",
	},
	followUps: [2][]string{
		{"Miền Bắc có gì đẹp?", "Miền Nam có gì đẹp?"},
		{"What is beautiful in the north?", "What is beautiful in the south?"},
	},
}

// CannedReply answers from a small keyword table. Unknown topics get a generic prompt.
func CannedReply(message, lang string, history []api.Message) api.ChatResponse {
	idx := 0
	if lang == api.LanguageEnglish {
		idx = 1
	}

	// Casers are stateful, so each call gets its own.
	folder := cases.Fold()
	t := fallback
	haystack := folder.String(message)
	for _, candidate := range topics {
		if matches(folder, haystack, candidate.keywords) {
			t = candidate
			break
		}
	}

	resp := api.ChatResponse{
		Message:           t.answer[idx],
		FollowUpQuestions: append([]string(nil), t.followUps[idx]...),
		Links:             []api.Link{},
	}
	if t.link.URL != "" {
		resp.Links = append(resp.Links, t.link)
	}
	return resp
}

func matches(folder cases.Caser, haystack string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(haystack, folder.String(k)) {
			return true
		}
	}
	return false
}

// languageTag normalizes a request language for logging, keeping unknown codes as sent.
func languageTag(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return tag.String()
}
