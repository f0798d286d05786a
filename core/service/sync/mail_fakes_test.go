package sync

import (
	"context"
	"fmt"
	"time"

	"mail_server/config"
	"mail_server/core/domain"
	"mail_server/core/port/out"

	"github.com/google/uuid"
	"google.golang.org/api/gmail/v1"
)

// --- accounts ---

type fakeAccounts struct {
	rows map[int64]*domain.Account
}

func newFakeAccounts(accounts ...*domain.Account) *fakeAccounts {
	f := &fakeAccounts{rows: make(map[int64]*domain.Account)}
	for _, a := range accounts {
		f.rows[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) GetByID(id int64) (*domain.Account, error) {
	return f.rows[id], nil
}

func (f *fakeAccounts) GetByEmail(email string) (*domain.Account, error) {
	for _, a := range f.rows {
		if a.EmailAddress == email {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) ListActive() ([]*domain.Account, error) {
	var active []*domain.Account
	for _, a := range f.rows {
		if a.Active() {
			active = append(active, a)
		}
	}
	return active, nil
}

func (f *fakeAccounts) GetOrCreate(ownerID uuid.UUID, email string) (*domain.Account, error) {
	if a, _ := f.GetByEmail(email); a != nil {
		return a, nil
	}
	a := &domain.Account{ID: int64(len(f.rows) + 1), OwnerID: ownerID, EmailAddress: email}
	f.rows[a.ID] = a
	return a, nil
}

func (f *fakeAccounts) UpdateHistoryID(id int64, historyID uint64) error {
	a := f.rows[id]
	if a.HistoryID == nil || *a.HistoryID < historyID {
		h := historyID
		a.HistoryID = &h
	}
	return nil
}

func (f *fakeAccounts) SetCompleteDownload(id int64, complete bool) error {
	f.rows[id].CompleteDownload = complete
	return nil
}

func (f *fakeAccounts) SetAuthorized(id int64, authorized bool) error {
	f.rows[id].IsAuthorized = authorized
	return nil
}

func (f *fakeAccounts) SetFromName(id int64, fromName string) error {
	f.rows[id].FromName = fromName
	return nil
}

func (f *fakeAccounts) SoftDelete(id int64) error {
	f.rows[id].IsDeleted = true
	return nil
}

// --- messages ---

type recipientLink struct {
	messageID   int64
	recipientID int64
	kind        domain.RecipientKind
}

type fakeMessages struct {
	nextID     int64
	rows       map[int64]*domain.Message
	labels     map[int64]map[int64]bool
	headers    []*domain.Header
	recipients map[string]*domain.Recipient
	links      []recipientLink
	labelRows  *fakeLabels
}

func newFakeMessages(labels *fakeLabels) *fakeMessages {
	return &fakeMessages{
		rows:       make(map[int64]*domain.Message),
		labels:     make(map[int64]map[int64]bool),
		recipients: make(map[string]*domain.Recipient),
		labelRows:  labels,
	}
}

func (f *fakeMessages) add(msg *domain.Message) *domain.Message {
	f.nextID++
	msg.ID = f.nextID
	f.rows[msg.ID] = msg
	return msg
}

func (f *fakeMessages) GetByID(id int64) (*domain.Message, error) {
	return f.rows[id], nil
}

func (f *fakeMessages) GetByRemoteID(accountID int64, messageID string) (*domain.Message, error) {
	for _, m := range f.rows {
		if m.AccountID == accountID && m.MessageID == messageID {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessages) GetOrCreate(accountID int64, messageID string, sentDate time.Time) (*domain.Message, error) {
	if m, _ := f.GetByRemoteID(accountID, messageID); m != nil {
		return m, nil
	}
	return f.add(&domain.Message{AccountID: accountID, MessageID: messageID, SentDate: sentDate}), nil
}

func (f *fakeMessages) ListDownloadedIDs(accountID int64) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	for _, m := range f.rows {
		if m.AccountID == accountID && m.IsDownloaded {
			ids[m.MessageID] = struct{}{}
		}
	}
	return ids, nil
}

func (f *fakeMessages) CountUndownloaded(accountID int64) (int, error) {
	count := 0
	for _, m := range f.rows {
		if m.AccountID == accountID && !m.IsDownloaded {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessages) Update(message *domain.Message) error {
	f.rows[message.ID] = message
	return nil
}

func (f *fakeMessages) SetRead(id int64, read bool) error {
	f.rows[id].Read = read
	return nil
}

func (f *fakeMessages) DeleteByRemoteID(accountID int64, messageID string) error {
	for id, m := range f.rows {
		if m.AccountID == accountID && m.MessageID == messageID {
			delete(f.rows, id)
			delete(f.labels, id)
		}
	}
	return nil
}

func (f *fakeMessages) ClearLabels(messageID int64) error {
	f.labels[messageID] = make(map[int64]bool)
	return nil
}

func (f *fakeMessages) AttachLabel(messageID, labelID int64) error {
	if f.labels[messageID] == nil {
		f.labels[messageID] = make(map[int64]bool)
	}
	f.labels[messageID][labelID] = true
	return nil
}

func (f *fakeMessages) DetachLabel(messageID, labelID int64) error {
	delete(f.labels[messageID], labelID)
	return nil
}

func (f *fakeMessages) GetLabels(messageID int64) ([]*domain.Label, error) {
	var labels []*domain.Label
	for labelID := range f.labels[messageID] {
		if l := f.labelRows.rows[labelID]; l != nil {
			labels = append(labels, l)
		}
	}
	return labels, nil
}

func (f *fakeMessages) AddHeader(header *domain.Header) error {
	for _, h := range f.headers {
		if h.MessageID == header.MessageID && h.Name == header.Name && h.ValueHash == header.ValueHash {
			return nil
		}
	}
	f.headers = append(f.headers, header)
	return nil
}

func (f *fakeMessages) GetOrCreateRecipient(name, email string) (*domain.Recipient, error) {
	key := name + "|" + email
	if r, ok := f.recipients[key]; ok {
		return r, nil
	}
	r := &domain.Recipient{ID: int64(len(f.recipients) + 1), Name: name, EmailAddress: email}
	f.recipients[key] = r
	return r, nil
}

func (f *fakeMessages) LinkRecipient(messageID, recipientID int64, kind domain.RecipientKind) error {
	for _, l := range f.links {
		if l.messageID == messageID && l.recipientID == recipientID && l.kind == kind {
			return nil
		}
	}
	f.links = append(f.links, recipientLink{messageID, recipientID, kind})
	return nil
}

func (f *fakeMessages) SetSender(messageID, recipientID int64) error {
	f.rows[messageID].SenderID = &recipientID
	return nil
}

// hasLabel reports a message-label association by remote label id.
func (f *fakeMessages) hasLabel(messageID int64, remoteLabelID string) bool {
	for labelID := range f.labels[messageID] {
		if l := f.labelRows.rows[labelID]; l != nil && l.LabelID == remoteLabelID {
			return true
		}
	}
	return false
}

// --- labels ---

type fakeLabels struct {
	nextID   int64
	rows     map[int64]*domain.Label
	recounts []int64
}

func newFakeLabels() *fakeLabels {
	return &fakeLabels{rows: make(map[int64]*domain.Label)}
}

func (f *fakeLabels) add(label *domain.Label) *domain.Label {
	f.nextID++
	label.ID = f.nextID
	f.rows[label.ID] = label
	return label
}

func (f *fakeLabels) GetByID(id int64) (*domain.Label, error) {
	return f.rows[id], nil
}

func (f *fakeLabels) GetByRemoteID(accountID int64, labelID string) (*domain.Label, error) {
	for _, l := range f.rows {
		if l.AccountID == accountID && l.LabelID == labelID {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeLabels) ListByAccount(accountID int64) ([]*domain.Label, error) {
	var labels []*domain.Label
	for _, l := range f.rows {
		if l.AccountID == accountID {
			labels = append(labels, l)
		}
	}
	return labels, nil
}

func (f *fakeLabels) Create(label *domain.Label) error {
	f.add(label)
	return nil
}

func (f *fakeLabels) UpdateName(id int64, name string) error {
	f.rows[id].Name = name
	return nil
}

func (f *fakeLabels) Delete(id int64) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeLabels) RecomputeUnread(id int64) error {
	f.recounts = append(f.recounts, id)
	return nil
}

// --- attachments ---

type fakeAttachments struct {
	nextID int64
	rows   map[int64]*domain.Attachment
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{rows: make(map[int64]*domain.Attachment)}
}

func (f *fakeAttachments) GetByID(id int64) (*domain.Attachment, error) {
	return f.rows[id], nil
}

func (f *fakeAttachments) ListByMessage(messageID int64) ([]*domain.Attachment, error) {
	var attachments []*domain.Attachment
	for _, a := range f.rows {
		if a.MessageID == messageID {
			attachments = append(attachments, a)
		}
	}
	return attachments, nil
}

func (f *fakeAttachments) ListByIDs(ids []int64) ([]*domain.Attachment, error) {
	var attachments []*domain.Attachment
	for _, id := range ids {
		if a := f.rows[id]; a != nil {
			attachments = append(attachments, a)
		}
	}
	return attachments, nil
}

func (f *fakeAttachments) Create(attachment *domain.Attachment) error {
	f.nextID++
	attachment.ID = f.nextID
	f.rows[attachment.ID] = attachment
	return nil
}

func (f *fakeAttachments) CountByMessage(messageID int64) (int, error) {
	attachments, _ := f.ListByMessage(messageID)
	return len(attachments), nil
}

// --- bodies ---

type fakeBodies struct {
	docs map[string]*domain.MessageBody
}

func newFakeBodies() *fakeBodies {
	return &fakeBodies{docs: make(map[string]*domain.MessageBody)}
}

func bodyKey(accountID int64, messageID string) string {
	return fmt.Sprintf("%d/%s", accountID, messageID)
}

func (f *fakeBodies) Upsert(ctx context.Context, body *domain.MessageBody) error {
	f.docs[bodyKey(body.AccountID, body.MessageID)] = body
	return nil
}

func (f *fakeBodies) Get(ctx context.Context, accountID int64, messageID string) (*domain.MessageBody, error) {
	return f.docs[bodyKey(accountID, messageID)], nil
}

func (f *fakeBodies) Delete(ctx context.Context, accountID int64, messageID string) error {
	delete(f.docs, bodyKey(accountID, messageID))
	return nil
}

// --- storage ---

type fakeStorage struct {
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte)}
}

func (f *fakeStorage) Save(path string, data []byte) error {
	f.blobs[path] = data
	return nil
}

func (f *fakeStorage) Open(path string) ([]byte, error) {
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("no blob at %s", path)
	}
	return data, nil
}

// --- producer ---

type enqueuedSync struct {
	accountID int64
	messageID string
	firstSync bool
}

type fakeProducer struct {
	syncAccounts []int64
	syncAll      []int64
	syncLabels   []int64
	finish       []int64
	syncMessages []enqueuedSync
	historyItems []*gmail.History
	sends        []int64
}

func (f *fakeProducer) EnqueueSyncAccount(ctx context.Context, accountID int64) error {
	f.syncAccounts = append(f.syncAccounts, accountID)
	return nil
}

func (f *fakeProducer) EnqueueSyncAllMessages(ctx context.Context, accountID int64) error {
	f.syncAll = append(f.syncAll, accountID)
	return nil
}

func (f *fakeProducer) EnqueueSyncLabelsForAllMessages(ctx context.Context, accountID int64) error {
	f.syncLabels = append(f.syncLabels, accountID)
	return nil
}

func (f *fakeProducer) EnqueueFinishSyncAllMessages(ctx context.Context, accountID int64) error {
	f.finish = append(f.finish, accountID)
	return nil
}

func (f *fakeProducer) EnqueueSyncMessage(ctx context.Context, accountID int64, messageID string, firstSync bool) error {
	f.syncMessages = append(f.syncMessages, enqueuedSync{accountID, messageID, firstSync})
	return nil
}

func (f *fakeProducer) EnqueueSyncHistoryItem(ctx context.Context, accountID int64, item *gmail.History) error {
	f.historyItems = append(f.historyItems, item)
	return nil
}

func (f *fakeProducer) EnqueueToggleRead(ctx context.Context, messageID int64, read bool) error {
	return nil
}

func (f *fakeProducer) EnqueueArchive(ctx context.Context, messageID int64) error { return nil }
func (f *fakeProducer) EnqueueTrash(ctx context.Context, messageID int64) error   { return nil }
func (f *fakeProducer) EnqueueDelete(ctx context.Context, messageID int64) error  { return nil }

func (f *fakeProducer) EnqueueSend(ctx context.Context, outboxID int64) error {
	f.sends = append(f.sends, outboxID)
	return nil
}

// --- lock ---

type fakeLock struct {
	held     map[string]string
	counters map[string]int64
	ttls     map[string]time.Duration
}

func newFakeLock() *fakeLock {
	return &fakeLock{
		held:     make(map[string]string),
		counters: make(map[string]int64),
		ttls:     make(map[string]time.Duration),
	}
}

func (f *fakeLock) Acquire(ctx context.Context, key, value string, ttl time.Duration) error {
	f.held[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeLock) Release(ctx context.Context, key string) error {
	delete(f.held, key)
	return nil
}

func (f *fakeLock) IsSet(ctx context.Context, key string) (bool, error) {
	_, ok := f.held[key]
	return ok, nil
}

func (f *fakeLock) InitCounter(ctx context.Context, key string, n int64, ttl time.Duration) error {
	f.counters[key] = n
	f.ttls[key] = ttl
	return nil
}

func (f *fakeLock) Decrement(ctx context.Context, key string) (int64, error) {
	f.counters[key]--
	return f.counters[key], nil
}

// --- provider ---

type labelEdit struct {
	messageID string
	add       []string
	remove    []string
}

type fakeProvider struct {
	profile     *gmail.Profile
	allIDs      []*gmail.Message
	history     []*gmail.History
	historyID   uint64
	full        map[string]*gmail.Message
	minimal     map[string]*gmail.Message
	labelInfo   map[string]*gmail.Label
	attachments map[string]*gmail.MessagePartBody
	labelLists  map[string][]string

	labelInfoCalls int
	edits          []labelEdit
	editErr        error
	trashed        []string
	deleted        []string
	sentRaw        [][]byte
	sentThreadID   string
	sentResult     *gmail.Message
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		full:        make(map[string]*gmail.Message),
		minimal:     make(map[string]*gmail.Message),
		labelInfo:   make(map[string]*gmail.Label),
		attachments: make(map[string]*gmail.MessagePartBody),
		labelLists:  make(map[string][]string),
	}
}

func (f *fakeProvider) GetProfile(ctx context.Context) (*gmail.Profile, error) {
	return f.profile, nil
}

func (f *fakeProvider) GetAllMessageIDs(ctx context.Context) ([]*gmail.Message, error) {
	return f.allIDs, nil
}

func (f *fakeProvider) GetHistory(ctx context.Context, startHistoryID uint64) ([]*gmail.History, error) {
	if len(f.history) > 0 {
		last := f.history[len(f.history)-1].Id
		if f.historyID < last {
			f.historyID = last
		}
	}
	return f.history, nil
}

func (f *fakeProvider) GetMessageInfo(ctx context.Context, messageID string) (*gmail.Message, error) {
	msg, ok := f.full[messageID]
	if !ok {
		return nil, fmt.Errorf("no full payload for %s", messageID)
	}
	return msg, nil
}

func (f *fakeProvider) GetMinimalMessageInfo(ctx context.Context, messageID string) (*gmail.Message, error) {
	msg, ok := f.minimal[messageID]
	if !ok {
		return nil, fmt.Errorf("no minimal payload for %s", messageID)
	}
	return msg, nil
}

func (f *fakeProvider) GetLabelInfo(ctx context.Context, labelID string) (*gmail.Label, error) {
	f.labelInfoCalls++
	info, ok := f.labelInfo[labelID]
	if !ok {
		return nil, fmt.Errorf("no label info for %s", labelID)
	}
	return info, nil
}

func (f *fakeProvider) GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	body, ok := f.attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("no attachment %s", attachmentID)
	}
	return body, nil
}

func (f *fakeProvider) UpdateLabels(ctx context.Context, messageID string, add, remove []string) (*gmail.Message, error) {
	f.edits = append(f.edits, labelEdit{messageID, add, remove})
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &gmail.Message{Id: messageID}, nil
}

func (f *fakeProvider) GetMessageLabelList(ctx context.Context, messageID string) ([]string, error) {
	return f.labelLists[messageID], nil
}

func (f *fakeProvider) TrashMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	f.trashed = append(f.trashed, messageID)
	msg, ok := f.minimal[messageID]
	if !ok {
		return nil, fmt.Errorf("no minimal payload for %s", messageID)
	}
	return msg, nil
}

func (f *fakeProvider) DeleteMessage(ctx context.Context, messageID string) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeProvider) SendMessage(ctx context.Context, raw []byte, threadID string) (*gmail.Message, error) {
	f.sentRaw = append(f.sentRaw, raw)
	f.sentThreadID = threadID
	if f.sentResult != nil {
		return f.sentResult, nil
	}
	return &gmail.Message{Id: "sent-1"}, nil
}

func (f *fakeProvider) HistoryID() uint64      { return f.historyID }
func (f *fakeProvider) SetHistoryID(id uint64) { f.historyID = id }

type fakeFactory struct {
	provider *fakeProvider
}

func (f *fakeFactory) ForAccount(ctx context.Context, account *domain.Account) (out.EmailProvider, error) {
	return f.provider, nil
}

// --- harness ---

type managerFixture struct {
	manager     *Manager
	cfg         *config.Config
	accounts    *fakeAccounts
	messages    *fakeMessages
	labels      *fakeLabels
	attachments *fakeAttachments
	bodies      *fakeBodies
	storage     *fakeStorage
	provider    *fakeProvider
	producer    *fakeProducer
	lock        *fakeLock
}

func newManagerFixture(accounts ...*domain.Account) *managerFixture {
	cfg := &config.Config{
		UnreadLabel:        "UNREAD",
		AttachmentUploadTo: "downloads/attachments/%d/%s",
		SyncLockLifetime:   3600,
		WorkerID:           "test-worker",
	}

	f := &managerFixture{
		cfg:         cfg,
		accounts:    newFakeAccounts(accounts...),
		labels:      newFakeLabels(),
		attachments: newFakeAttachments(),
		bodies:      newFakeBodies(),
		storage:     newFakeStorage(),
		provider:    newFakeProvider(),
		producer:    &fakeProducer{},
		lock:        newFakeLock(),
	}
	f.messages = newFakeMessages(f.labels)

	f.manager = NewManager(
		cfg,
		f.accounts,
		f.messages,
		f.labels,
		f.attachments,
		f.bodies,
		f.storage,
		&fakeFactory{provider: f.provider},
		f.producer,
		f.lock,
	)
	return f
}

func activeAccount(id int64) *domain.Account {
	return &domain.Account{
		ID:           id,
		EmailAddress: fmt.Sprintf("user%d@example.com", id),
		IsAuthorized: true,
	}
}
