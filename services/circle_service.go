package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/pkg/crypto"
	"github.com/akinalp/sohbet/pkg/email"
	"github.com/akinalp/sohbet/pkg/metrics"
	"github.com/akinalp/sohbet/repository"
	"github.com/akinalp/sohbet/ws"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Circle mesaj sayfalama sınırları.
const (
	DefaultCircleMessageLimit = 30
	MinCircleMessageLimit     = 5
	MaxCircleMessageLimit     = 100
)

// Sahiplik değişim nedenleri (event ve email).
const (
	OwnerChangeTransfer  = "transfer"
	OwnerChangePromotion = "promotion"
)

// emailTimeout, sahiplik bildirimi gönderimi için üst süre.
const emailTimeout = 10 * time.Second

// CircleService, circle iş mantığı.
//
// Tüm owner-only işlemler çağıranın rolünü DB'den okur; istemciden gelen
// rol bilgisine güvenilmez.
type CircleService interface {
	Create(ctx context.Context, ownerID string, req *models.CreateCircleRequest) (*models.Circle, error)
	List(ctx context.Context, userID string) ([]models.CircleListItem, error)
	Get(ctx context.Context, userID, circleID string) (*models.CircleDetails, error)
	Delete(ctx context.Context, ownerID, circleID string) error

	Join(ctx context.Context, userID, circleID, joinKey string) (*models.JoinResult, error)
	Leave(ctx context.Context, userID, circleID string) (*models.LeaveResult, error)
	TransferOwnership(ctx context.Context, ownerID, circleID, memberID string) error
	RemoveMember(ctx context.Context, ownerID, circleID, memberID string) error
	TogglePin(ctx context.Context, userID, circleID string) (bool, error)

	GetMessages(ctx context.Context, userID, circleID string, page, limit int) (*models.CircleMessagePage, error)
	PostMessage(ctx context.Context, userID, circleID string, req *models.PostCircleMessageRequest, upload *Upload) (*models.CircleMessage, error)

	// AuthorizeCircleRoom, join_circle için üyelik kontrolü (ws.RoomAuthorizer).
	AuthorizeCircleRoom(ctx context.Context, userID, circleID string) error
}

type circleService struct {
	circleRepo  repository.CircleRepository
	messageRepo repository.CircleMessageRepository
	users       UserDirectory
	keys        crypto.JoinKeyVerifier
	attachments AttachmentStore
	hub         ws.EventPublisher
	mailer      email.EmailSender
	clock       clock.Clock
}

// NewCircleService, constructor. mailer nil ise sahiplik email'i gönderilmez.
func NewCircleService(
	circleRepo repository.CircleRepository,
	messageRepo repository.CircleMessageRepository,
	users UserDirectory,
	keys crypto.JoinKeyVerifier,
	attachments AttachmentStore,
	hub ws.EventPublisher,
	mailer email.EmailSender,
	clk clock.Clock,
) CircleService {
	return &circleService{
		circleRepo:  circleRepo,
		messageRepo: messageRepo,
		users:       users,
		keys:        keys,
		attachments: attachments,
		hub:         hub,
		mailer:      mailer,
		clock:       clk,
	}
}

func (s *circleService) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *circleService) Create(ctx context.Context, ownerID string, req *models.CreateCircleRequest) (*models.Circle, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	circle := &models.Circle{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
		Theme:       req.Theme,
		CreatedAt:   s.now(),
	}
	if circle.IsPrivate() {
		hash, err := s.keys.Hash(req.JoinKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pkg.ErrInternal, err)
		}
		circle.JoinKeyHash = hash
	}

	if err := s.circleRepo.Create(ctx, circle, ownerID); err != nil {
		return nil, err
	}

	zap.S().Infow("[circle] created", "circle_id", circle.ID, "owner_id", ownerID, "visibility", circle.Visibility)
	return circle, nil
}

func (s *circleService) List(ctx context.Context, userID string) ([]models.CircleListItem, error) {
	items, err := s.circleRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	previews, err := s.circleRepo.MembersPreview(ctx, ids, models.CircleMembersPreviewSize)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if p, ok := previews[items[i].ID]; ok {
			items[i].MembersPreview = p
		}
	}
	return items, nil
}

func (s *circleService) Get(ctx context.Context, userID, circleID string) (*models.CircleDetails, error) {
	circle, err := s.circleRepo.GetByID(ctx, circleID)
	if err != nil {
		return nil, err
	}
	member, err := s.circleRepo.GetMember(ctx, circleID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil && circle.IsPrivate() {
		return nil, fmt.Errorf("%w: private circle", pkg.ErrForbidden)
	}

	members, err := s.circleRepo.ListMembers(ctx, circleID)
	if err != nil {
		return nil, err
	}

	details := &models.CircleDetails{
		Circle:   *circle,
		Members:  members,
		IsMember: member != nil,
	}
	if member != nil {
		role := member.Role
		details.MyRole = &role
	}
	return details, nil
}

func (s *circleService) Delete(ctx context.Context, ownerID, circleID string) error {
	if _, err := s.requireOwner(ctx, ownerID, circleID); err != nil {
		return err
	}
	if err := s.circleRepo.Delete(ctx, circleID); err != nil {
		return err
	}

	zap.S().Infow("[circle] deleted", "circle_id", circleID, "owner_id", ownerID)
	s.hub.Publish(ws.Event{Op: ws.OpCircleDelete, Data: ws.CircleDeleteData{CircleID: circleID}}, ws.CircleRoom(circleID))
	return nil
}

// Join, public circle'a doğrudan, private circle'a key ile katılır.
// Key kontrolü başarısızsa hiçbir şey değişmez.
func (s *circleService) Join(ctx context.Context, userID, circleID, joinKey string) (*models.JoinResult, error) {
	circle, err := s.circleRepo.GetByID(ctx, circleID)
	if err != nil {
		return nil, err
	}

	member, err := s.circleRepo.GetMember(ctx, circleID, userID)
	if err != nil {
		return nil, err
	}
	if member != nil {
		return &models.JoinResult{CircleID: circleID, AlreadyMember: true, Message: "already a member"}, nil
	}

	if circle.IsPrivate() {
		if err := models.ValidateJoinKey(joinKey); err != nil {
			return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
		}
		if !s.keys.Verify(circle.JoinKeyHash, joinKey) {
			return nil, fmt.Errorf("%w: invalid join key", pkg.ErrForbidden)
		}
	}

	added, err := s.circleRepo.AddMember(ctx, circleID, userID, models.CircleRoleMember, s.now())
	if err != nil {
		return nil, err
	}
	if !added {
		// Eşzamanlı ikinci istek: üye zaten eklendi.
		return &models.JoinResult{CircleID: circleID, AlreadyMember: true, Message: "already a member"}, nil
	}

	s.publishMemberUpdate(ctx, circleID, userID, "joined")
	return &models.JoinResult{CircleID: circleID, Message: "joined " + circle.Name}, nil
}

// Leave, owner ayrılırsa ilk admin'i, yoksa ilk üyeyi owner yapar.
// Kimse kalmazsa circle silinir.
func (s *circleService) Leave(ctx context.Context, userID, circleID string) (*models.LeaveResult, error) {
	circle, err := s.circleRepo.GetByID(ctx, circleID)
	if err != nil {
		return nil, err
	}
	member, err := s.circleRepo.GetMember(ctx, circleID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("%w: not a member of this circle", pkg.ErrForbidden)
	}

	if member.Role == models.CircleRoleOwner {
		return s.leaveAsOwner(ctx, circle, userID)
	}

	// RemoveMember owner satırını silmez. Okuma ile silme arasında eski
	// owner ayrılıp bu üyeyi terfi ettirdiyse owner yolu izlenir.
	removed, err := s.circleRepo.RemoveMember(ctx, circleID, userID)
	if err != nil {
		return nil, err
	}
	if !removed {
		member, err = s.circleRepo.GetMember(ctx, circleID, userID)
		if err != nil {
			return nil, err
		}
		if member != nil && member.Role == models.CircleRoleOwner {
			return s.leaveAsOwner(ctx, circle, userID)
		}
		return nil, fmt.Errorf("%w: not a member of this circle", pkg.ErrNotFound)
	}

	s.hub.RemoveUserFromRoom(userID, ws.CircleRoom(circleID))
	s.publishMemberUpdate(ctx, circleID, userID, "left")
	return &models.LeaveResult{CircleID: circleID}, nil
}

// leaveAsOwner, owner'ı çıkarıp sıradaki üyeyi terfi ettirir; kimse yoksa circle silinir.
func (s *circleService) leaveAsOwner(ctx context.Context, circle *models.Circle, userID string) (*models.LeaveResult, error) {
	circleID := circle.ID
	result := &models.LeaveResult{CircleID: circleID}

	newOwnerID, deleted, err := s.circleRepo.RemoveOwnerAndPromote(ctx, circleID, userID)
	if err != nil {
		return nil, err
	}
	s.hub.RemoveUserFromRoom(userID, ws.CircleRoom(circleID))

	if deleted {
		result.CircleDeleted = true
		zap.S().Infow("[circle] last member left, circle deleted", "circle_id", circleID, "user_id", userID)
		s.hub.Publish(ws.Event{Op: ws.OpCircleDelete, Data: ws.CircleDeleteData{CircleID: circleID}},
			ws.CircleRoom(circleID), ws.UserRoom(userID))
		return result, nil
	}

	result.NewOwnerID = &newOwnerID
	s.publishMemberUpdate(ctx, circleID, userID, "left")
	s.announceOwnerChange(ctx, circle, userID, newOwnerID, OwnerChangePromotion)
	return result, nil
}

func (s *circleService) TransferOwnership(ctx context.Context, ownerID, circleID, memberID string) error {
	circle, err := s.requireOwner(ctx, ownerID, circleID)
	if err != nil {
		return err
	}
	if memberID == "" || memberID == ownerID {
		return fmt.Errorf("%w: choose another member as the new owner", pkg.ErrBadRequest)
	}

	target, err := s.circleRepo.GetMember(ctx, circleID, memberID)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("%w: target is not a member of this circle", pkg.ErrNotFound)
	}

	if err := s.circleRepo.TransferOwnership(ctx, circleID, ownerID, memberID); err != nil {
		return err
	}

	s.announceOwnerChange(ctx, circle, ownerID, memberID, OwnerChangeTransfer)
	return nil
}

func (s *circleService) RemoveMember(ctx context.Context, ownerID, circleID, memberID string) error {
	if _, err := s.requireOwner(ctx, ownerID, circleID); err != nil {
		return err
	}
	if memberID == ownerID {
		return fmt.Errorf("%w: the owner cannot be removed", pkg.ErrForbidden)
	}

	member, err := s.circleRepo.GetMember(ctx, circleID, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return fmt.Errorf("%w: not a member of this circle", pkg.ErrNotFound)
	}
	if member.Role == models.CircleRoleOwner {
		return fmt.Errorf("%w: the owner cannot be removed", pkg.ErrForbidden)
	}

	removed, err := s.circleRepo.RemoveMember(ctx, circleID, memberID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: not a member of this circle", pkg.ErrNotFound)
	}

	s.hub.RemoveUserFromRoom(memberID, ws.CircleRoom(circleID))
	s.publishMemberUpdate(ctx, circleID, memberID, "removed", ws.UserRoom(memberID))
	return nil
}

func (s *circleService) TogglePin(ctx context.Context, userID, circleID string) (bool, error) {
	if _, err := s.circleRepo.GetByID(ctx, circleID); err != nil {
		return false, err
	}
	return s.circleRepo.TogglePin(ctx, circleID, userID)
}

func (s *circleService) GetMessages(ctx context.Context, userID, circleID string, page, limit int) (*models.CircleMessagePage, error) {
	if _, err := s.requireMember(ctx, userID, circleID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit, MinCircleMessageLimit, MaxCircleMessageLimit, DefaultCircleMessageLimit)
	offset := (page - 1) * limit

	total, err := s.messageRepo.Count(ctx, circleID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.List(ctx, circleID, offset, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)

	return &models.CircleMessagePage{
		CircleID: circleID,
		Messages: messages,
		Page:     page,
		Limit:    limit,
		Total:    total,
		HasMore:  offset+len(messages) < total,
	}, nil
}

func (s *circleService) PostMessage(ctx context.Context, userID, circleID string, req *models.PostCircleMessageRequest, upload *Upload) (*models.CircleMessage, error) {
	if _, err := s.requireMember(ctx, userID, circleID); err != nil {
		return nil, err
	}

	req.HasAttachment = upload != nil
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	sender := userID
	msg := &models.CircleMessage{
		CircleID:    circleID,
		SenderID:    &sender,
		Text:        req.Text,
		Attachments: []models.CircleAttachment{},
		CreatedAt:   s.now(),
	}

	var stored *StoredAttachment
	if upload != nil {
		var err error
		stored, err = s.attachments.Save(ctx, upload.File, upload.Header)
		if err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, models.CircleAttachment{
			URL:      stored.URL,
			Type:     stored.Type,
			Size:     stored.Size,
			MimeType: stored.MimeType,
		})
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		if stored != nil {
			if rmErr := s.attachments.Remove(stored); rmErr != nil {
				zap.S().Warnw("[circle] failed to remove orphan attachment", "url", stored.URL, "error", rmErr)
			}
		}
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues("circle").Inc()

	if err := s.circleRepo.TouchActivity(ctx, circleID, msg.CreatedAt); err != nil {
		zap.S().Errorw("[circle] failed to touch activity", "circle_id", circleID, "error", err)
	}

	if summary, err := s.users.Summary(ctx, userID); err == nil {
		msg.Sender = &summary
	}

	s.hub.Publish(ws.Event{
		Op:   ws.OpCircleMessage,
		Data: ws.CircleMessageData{CircleID: circleID, Message: msg},
	}, ws.CircleRoom(circleID))
	return msg, nil
}

func (s *circleService) AuthorizeCircleRoom(ctx context.Context, userID, circleID string) error {
	_, err := s.requireMember(ctx, userID, circleID)
	return err
}

// requireMember, circle yoksa NotFound, üye değilse Forbidden döner.
func (s *circleService) requireMember(ctx context.Context, userID, circleID string) (*models.CircleMember, error) {
	if _, err := s.circleRepo.GetByID(ctx, circleID); err != nil {
		return nil, err
	}
	member, err := s.circleRepo.GetMember(ctx, circleID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("%w: not a member of this circle", pkg.ErrForbidden)
	}
	return member, nil
}

func (s *circleService) requireOwner(ctx context.Context, userID, circleID string) (*models.Circle, error) {
	circle, err := s.circleRepo.GetByID(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if circle.OwnerID != userID {
		return nil, fmt.Errorf("%w: only the owner can do this", pkg.ErrForbidden)
	}
	return circle, nil
}

// publishMemberUpdate, güncel üye sayısıyla circle_member_update yayınlar.
func (s *circleService) publishMemberUpdate(ctx context.Context, circleID, userID, action string, extraRooms ...string) {
	count := 0
	if circle, err := s.circleRepo.GetByID(ctx, circleID); err == nil {
		count = circle.MemberCount
	}

	rooms := append([]string{ws.CircleRoom(circleID)}, extraRooms...)
	s.hub.Publish(ws.Event{
		Op: ws.OpCircleMemberUpdate,
		Data: ws.CircleMemberUpdateData{
			CircleID:    circleID,
			UserID:      userID,
			Action:      action,
			MemberCount: count,
		},
	}, rooms...)
}

// announceOwnerChange: sistem mesajı, circle_owner_changed event'i ve
// yapılandırılmışsa yeni owner'a email. Hiçbiri işlemi geri almaz.
func (s *circleService) announceOwnerChange(ctx context.Context, circle *models.Circle, previousID, newID, reason string) {
	zap.S().Infow("[circle] ownership changed",
		"circle_id", circle.ID, "previous_owner_id", previousID, "new_owner_id", newID, "reason", reason)

	names, err := s.users.Summaries(ctx, []string{previousID, newID})
	if err != nil {
		names = map[string]models.UserSummary{}
	}
	nameOf := func(id string) string {
		if u, ok := names[id]; ok {
			return u.Name()
		}
		return "A member"
	}

	text := fmt.Sprintf("%s is now the owner of this circle", nameOf(newID))
	if reason == OwnerChangeTransfer {
		text = fmt.Sprintf("%s transferred ownership to %s", nameOf(previousID), nameOf(newID))
	}

	sys := &models.CircleMessage{
		CircleID:    circle.ID,
		Text:        text,
		Attachments: []models.CircleAttachment{},
		System:      true,
		CreatedAt:   s.now(),
	}
	if err := s.messageRepo.Create(ctx, sys); err != nil {
		zap.S().Errorw("[circle] failed to persist system message", "circle_id", circle.ID, "error", err)
	} else {
		metrics.MessagesSent.WithLabelValues("system").Inc()
		s.hub.Publish(ws.Event{
			Op:   ws.OpCircleMessage,
			Data: ws.CircleMessageData{CircleID: circle.ID, Message: sys},
		}, ws.CircleRoom(circle.ID))
	}

	s.hub.Publish(ws.Event{
		Op: ws.OpCircleOwnerChanged,
		Data: ws.CircleOwnerChangedData{
			CircleID:        circle.ID,
			PreviousOwnerID: previousID,
			NewOwnerID:      newID,
			Reason:          reason,
		},
	}, ws.CircleRoom(circle.ID), ws.UserRoom(newID))

	s.sendOwnershipEmail(ctx, circle, newID, reason)
}

func (s *circleService) sendOwnershipEmail(ctx context.Context, circle *models.Circle, newID, reason string) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.Get(ctx, newID)
	if err != nil {
		zap.S().Warnw("[circle] cannot load new owner for email", "user_id", newID, "error", err)
		return
	}
	if user.Email == nil || *user.Email == "" {
		return
	}

	mailCtx, cancel := context.WithTimeout(ctx, emailTimeout)
	defer cancel()

	notice := email.OwnershipNotice{CircleID: circle.ID, CircleName: circle.Name, Reason: reason}
	if err := s.mailer.SendOwnershipNotice(mailCtx, *user.Email, notice); err != nil {
		zap.S().Warnw("[circle] ownership email failed", "circle_id", circle.ID, "user_id", newID, "error", err)
	}
}
