package handlers

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/presence"
	"github.com/crlx1q/antimat/internal/service"
)

// userView is the owner's view of their account. The password hash and
// the push token never leave the server.
type userView struct {
	ID                     string              `json:"id"`
	Email                  string              `json:"email"`
	Name                   string              `json:"name"`
	Avatar                 *string             `json:"avatar"`
	PenaltyAmount          int64               `json:"penaltyAmount"`
	PenaltyAmountUpdatedAt *time.Time          `json:"penaltyAmountUpdatedAt"`
	IsPremium              bool                `json:"isPremium"`
	PremiumExpiresAt       *time.Time          `json:"premiumExpiresAt"`
	ContinuousRecording    bool                `json:"continuousRecording"`
	BannedWords            []models.BannedWord `json:"bannedWords"`
	TotalDebt              int64               `json:"totalDebt"`
	Groups                 []string            `json:"groups"`
	Settings               models.UserSettings `json:"settings"`
	Status                 presence.Status     `json:"status"`
	LastSeen               *time.Time          `json:"lastSeen"`
	IsRecording            bool                `json:"isRecording"`
	CreatedAt              time.Time           `json:"createdAt"`
}

func newUserView(u models.User, now time.Time) userView {
	words := u.BannedWords
	if words == nil {
		words = []models.BannedWord{}
	}
	return userView{
		ID:                     u.ID.Hex(),
		Email:                  u.Email,
		Name:                   u.Name,
		Avatar:                 u.Avatar,
		PenaltyAmount:          u.PenaltyAmount,
		PenaltyAmountUpdatedAt: u.PenaltyAmountUpdatedAt,
		IsPremium:              u.Premium(now),
		PremiumExpiresAt:       u.PremiumExpiresAt,
		ContinuousRecording:    u.ContinuousRecording,
		BannedWords:            words,
		TotalDebt:              u.TotalDebt,
		Groups:                 hexList(u.Groups),
		Settings:               u.Settings,
		Status:                 presence.ForUser(u, now, presence.Overrides{}),
		LastSeen:               u.LastSeen,
		IsRecording:            u.IsRecording,
		CreatedAt:              u.CreatedAt,
	}
}

// adminUserView adds what the admin panel shows on top of the owner view.
type adminUserView struct {
	userView
	LastActiveAt time.Time `json:"lastActiveAt"`
	HasPushToken bool      `json:"hasPushToken"`
}

// memberUserView is what other group members may see about a user.
type memberUserView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Avatar      *string         `json:"avatar"`
	TotalDebt   int64           `json:"totalDebt"`
	IsPremium   bool            `json:"isPremium"`
	Status      presence.Status `json:"status"`
	LastSeen    *time.Time      `json:"lastSeen"`
	IsRecording bool            `json:"isRecording"`
}

type memberView struct {
	User     memberUserView    `json:"user"`
	Role     models.MemberRole `json:"role"`
	JoinedAt time.Time         `json:"joinedAt"`
}

type groupView struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	InviteCode  string               `json:"inviteCode"`
	InviteLink  string               `json:"inviteLink"`
	Owner       string               `json:"owner"`
	Admins      []string             `json:"admins"`
	Members     []memberView         `json:"members"`
	MemberCount int                  `json:"memberCount"`
	Settings    models.GroupSettings `json:"settings"`
	CreatedAt   time.Time            `json:"createdAt"`
}

func (h HandlerSet) newGroupView(g service.GroupView, now time.Time) groupView {
	view := h.newGroupSummary(g.Group)
	view.Members = make([]memberView, 0, len(g.MemberViews))
	for _, m := range g.MemberViews {
		view.Members = append(view.Members, memberView{
			User: memberUserView{
				ID:          m.User.ID.Hex(),
				Name:        m.User.Name,
				Avatar:      m.User.Avatar,
				TotalDebt:   m.User.TotalDebt,
				IsPremium:   m.User.Premium(now),
				Status:      m.Status,
				LastSeen:    m.User.LastSeen,
				IsRecording: m.User.IsRecording,
			},
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	return view
}

// newGroupSummary renders a group without loading member profiles.
func (h HandlerSet) newGroupSummary(g models.Group) groupView {
	return groupView{
		ID:          g.ID.Hex(),
		Name:        g.Name,
		Description: g.Description,
		InviteCode:  g.InviteCode,
		InviteLink:  h.groupService.InviteLink(g.InviteCode),
		Owner:       g.Owner.Hex(),
		Admins:      hexList(g.Admins),
		Members:     []memberView{},
		MemberCount: len(g.Members),
		Settings:    g.Settings,
		CreatedAt:   g.CreatedAt,
	}
}

type senderView struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
}

type messageMetadataView struct {
	PenaltyID     string `json:"penaltyId,omitempty"`
	PenaltyAmount *int64 `json:"penaltyAmount,omitempty"`
	Word          string `json:"word,omitempty"`
	TargetUser    string `json:"targetUser,omitempty"`
}

type messageView struct {
	ID        string               `json:"id"`
	GroupID   string               `json:"groupId"`
	Sender    *senderView          `json:"sender"`
	Type      models.MessageType   `json:"type"`
	Text      string               `json:"text"`
	Metadata  *messageMetadataView `json:"metadata,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

func newMessageView(m service.MessageView) messageView {
	view := messageView{
		ID:        m.ID.Hex(),
		GroupID:   m.Group.Hex(),
		Type:      m.Type,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
	if m.Sender != nil {
		view.Sender = &senderView{ID: m.Sender.Hex(), Name: m.SenderName, Avatar: m.SenderAvatar}
	}
	if md := m.Metadata; md != nil {
		view.Metadata = &messageMetadataView{
			PenaltyID:     hexPtr(md.PenaltyID),
			PenaltyAmount: md.PenaltyAmount,
			Word:          md.Word,
			TargetUser:    hexPtr(md.TargetUser),
		}
	}
	return view
}

func newMessageViews(ms []service.MessageView) []messageView {
	out := make([]messageView, 0, len(ms))
	for _, m := range ms {
		out = append(out, newMessageView(m))
	}
	return out
}

type groupRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type penaltyView struct {
	ID           string     `json:"id"`
	Word         string     `json:"word"`
	Amount       int64      `json:"amount"`
	Group        *groupRef  `json:"group"`
	IsForgiven   bool       `json:"isForgiven"`
	ForgivenBy   string     `json:"forgivenBy,omitempty"`
	ForgivenAt   *time.Time `json:"forgivenAt"`
	AIPunishment string     `json:"aiPunishment"`
	DetectedAt   time.Time  `json:"detectedAt"`
}

func newPenaltyView(p models.Penalty, groupNames map[primitive.ObjectID]string) penaltyView {
	view := penaltyView{
		ID:           p.ID.Hex(),
		Word:         p.Word,
		Amount:       p.Amount,
		IsForgiven:   p.IsForgiven,
		ForgivenBy:   hexPtr(p.ForgivenBy),
		ForgivenAt:   p.ForgivenAt,
		AIPunishment: p.AIPunishment,
		DetectedAt:   p.DetectedAt,
	}
	if p.Group != nil {
		view.Group = &groupRef{ID: p.Group.Hex(), Name: groupNames[*p.Group]}
	}
	return view
}

func hexList(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

func hexPtr(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}
