// Package client orchestrates requests against the remote server: it owns
// the transport and MemoryFS, authenticates, issues typed actions, and
// keeps the local cache coherent with every mutation it performs.
package client

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/DanSnow/dfs-fuse/internal/dfserrors"
	"github.com/DanSnow/dfs-fuse/internal/memoryfs"
	"github.com/DanSnow/dfs-fuse/internal/transport"
	"github.com/DanSnow/dfs-fuse/internal/ttlcache"
	"github.com/DanSnow/dfs-fuse/internal/wire"
)

const (
	ctlAuth = "auth"
	ctlEcho = "echo"
	ctlDir  = "dir"
	ctlFile = "file"
)

// Client is the single point of contact between the FUSE operation layer
// and the remote server. One Client per mount.
type Client struct {
	// mu serializes every request/response round trip: the wire protocol
	// is strictly FIFO on one connection, so send-then-receive for a
	// given call must not interleave with another goroutine's.
	mu sync.Mutex

	tr  *transport.Transport
	fs  *memoryfs.MemoryFS
	dir *ttlcache.Cache

	psk      string
	cacheOn  bool
}

// New returns a Client bound to host:port, not yet connected.
func New(host string, port int, psk string, cacheOn bool) *Client {
	return &Client{
		tr:      transport.New(host, port),
		fs:      memoryfs.New(),
		dir:     ttlcache.New(),
		psk:     psk,
		cacheOn: cacheOn,
	}
}

// Init performs the full connect/authenticate/load-root bootstrap. Call
// once before any other method.
func (c *Client) Init() error {
	if err := c.tr.Connect(); err != nil {
		return err
	}
	c.fs.Reset()
	c.dir.Reset()
	if err := c.login(); err != nil {
		return err
	}
	_, err := c.readdirUncached("/")
	return err
}

// Reconnect tears down and re-establishes the connection, resets MemoryFS,
// re-authenticates, and re-reads the root listing. The client is not
// usable again until this returns successfully.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	_ = c.tr.Close()
	c.mu.Unlock()
	return c.Init()
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.Close()
}

func (c *Client) login() error {
	sum := md5.Sum([]byte(c.psk))
	hexDigest := hex.EncodeToString(sum[:])
	_, body, err := c.request(ctlAuth, "login", map[string]string{"psk": hexDigest}, nil)
	if err != nil {
		return err
	}
	if string(body) != "OK" {
		return &dfserrors.AuthError{Reason: "login rejected"}
	}
	return nil
}

// Ping performs the liveness round trip.
func (c *Client) Ping() error {
	_, body, err := c.request(ctlEcho, "echo", nil, []byte("ping"))
	if err != nil {
		return err
	}
	if !bytesEqual(body, []byte("ping")) {
		return &dfserrors.ServerError{Action: "echo#echo", Detail: "unexpected echo body"}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// request performs one send/receive round trip under the transport mutex,
// returning the response headers and body. A non-"OK" result header is not
// itself an error here; callers expecting "OK" bodies check that
// themselves, since a handful of actions (dir#list, file#get) use result
// differently.
func (c *Client) request(controller, action string, headers map[string]string, body []byte) (map[string]string, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		h[k] = v
	}
	h[wire.HeaderController] = controller
	h[wire.HeaderAction] = action

	pkt := wire.New(h, body)
	if err := c.tr.Send(pkt); err != nil {
		return nil, nil, err
	}
	resp, err := c.tr.Receive()
	if err != nil {
		return nil, nil, err
	}
	return resp.Headers, resp.Body, nil
}

// requireOK issues a request and treats any body other than "OK" as a
// ServerError.
func (c *Client) requireOK(controller, action string, headers map[string]string, body []byte) error {
	_, respBody, err := c.request(controller, action, headers, body)
	if err != nil {
		return err
	}
	if string(respBody) != "OK" {
		return &dfserrors.ServerError{Action: controller + "#" + action, Detail: string(respBody)}
	}
	return nil
}

// --- path resolution -------------------------------------------------

// Has lazily resolves p by walking from the root down, issuing dir#list
// against the deepest already-known ancestor until the target is found or
// a non-directory segment blocks further descent.
func (c *Client) Has(p string) bool {
	p = normalize(p)
	if c.fs.Has(p) {
		return true
	}

	segments := splitPath(p)
	cur := "/"
	if !c.fs.Has(cur) {
		if _, err := c.readdirUncached(cur); err != nil {
			return false
		}
	}

	for _, seg := range segments {
		if !c.fs.IsDir(cur) {
			return false
		}
		next := path.Join(cur, seg)
		if c.fs.Has(next) {
			cur = next
			continue
		}
		if _, err := c.readdirUncached(cur); err != nil {
			return false
		}
		if !c.fs.Has(next) {
			return false
		}
		cur = next
	}
	return c.fs.Has(p)
}

// Stat returns the metadata for p, resolving it first if necessary.
func (c *Client) Stat(p string) (memoryfs.Meta, error) {
	p = normalize(p)
	if !c.fs.Has(p) {
		if !c.Has(p) {
			return memoryfs.Meta{}, &dfserrors.NotFoundError{Path: p}
		}
	}
	return c.fs.GetMeta(p)
}

// Readdir returns child names for p, consulting the freshness cache first
// when caching is enabled.
func (c *Client) Readdir(p string) ([]string, error) {
	p = normalize(p)
	if c.cacheOn && c.dir.IsFresh(p) {
		return c.fs.Readdir(p)
	}
	return c.readdirUncached(p)
}

func (c *Client) readdirUncached(p string) ([]string, error) {
	headers := map[string]string{}
	if p != "/" {
		id, err := c.fs.GetID(p)
		if err != nil {
			return nil, err
		}
		headers["id"] = strconv.FormatInt(id, 10)
	}

	_, body, err := c.request(ctlDir, "list", headers, nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]rawMeta
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &dfserrors.InternalError{Detail: "dir#list: malformed JSON: " + err.Error()}
	}

	listing := make(memoryfs.Listing, len(raw))
	for name, m := range raw {
		listing[name] = m.toMeta()
	}
	if err := c.fs.AddDir(p, listing); err != nil {
		return nil, err
	}
	c.dir.MarkFresh(p)
	return c.fs.Readdir(p)
}

type rawMeta struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Ctime string `json:"ctime"`
	Size  *int64 `json:"size"`
}

func (m rawMeta) toMeta() memoryfs.Meta {
	out := memoryfs.Meta{ID: m.ID, Ctime: m.Ctime}
	if m.Type == "dir" {
		out.Type = memoryfs.TypeDir
	} else {
		out.Type = memoryfs.TypeFile
	}
	if m.Size != nil {
		out.Size = *m.Size
		out.HasSize = true
	}
	return out
}

// --- mutations ---------------------------------------------------------

// Write overwrites p's content in full and caches the body locally.
func (c *Client) Write(p string, data []byte) error {
	p = normalize(p)
	parent, name := path.Split(p)
	parentID, err := c.parentID(parent)
	if err != nil {
		return err
	}

	headers := map[string]string{"id": strconv.FormatInt(parentID, 10), "name": name}
	if err := c.requireOK(ctlFile, "put", headers, data); err != nil {
		return err
	}

	c.dir.Invalidate(normalize(parent))
	if _, err := c.readdirUncached(normalize(parent)); err != nil {
		return err
	}
	return c.fs.LoadFile(p, data)
}

// Read returns p's current content, fetching it from the server.
func (c *Client) Read(p string) ([]byte, error) {
	p = normalize(p)
	id, err := c.fs.GetID(p)
	if err != nil {
		return nil, err
	}

	headers, body, err := c.request(ctlFile, "get", map[string]string{"id": strconv.FormatInt(id, 10)}, nil)
	if err != nil {
		return nil, err
	}
	if headers["result"] != "OK" {
		return nil, &dfserrors.ServerError{Action: "file#get", Detail: headers["result"]}
	}
	if err := c.fs.LoadFile(p, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Rm deletes the file at p. Returns false if p was not known.
func (c *Client) Rm(p string) (bool, error) {
	p = normalize(p)
	if !c.Has(p) {
		return false, nil
	}
	id, err := c.fs.GetID(p)
	if err != nil {
		return false, err
	}
	if err := c.requireOK(ctlFile, "rm", map[string]string{"id": strconv.FormatInt(id, 10)}, nil); err != nil {
		return false, err
	}
	parent := normalize(path.Dir(p))
	c.dir.Invalidate(parent)
	_, err = c.readdirUncached(parent)
	return true, err
}

// Mkdir creates a directory named name under parent.
func (c *Client) Mkdir(parent, name string) error {
	parent = normalize(parent)
	if !c.fs.Has(parent) {
		if !c.Has(parent) {
			return &dfserrors.NotFoundError{Path: parent}
		}
	}
	parentID, err := c.fs.GetID(parent)
	if err != nil {
		return err
	}
	headers := map[string]string{"id": strconv.FormatInt(parentID, 10), "name": name}
	if err := c.requireOK(ctlDir, "add", headers, nil); err != nil {
		return err
	}
	c.dir.Invalidate(parent)
	_, err = c.readdirUncached(parent)
	return err
}

// Rmdir removes the directory at p.
func (c *Client) Rmdir(p string) error {
	p = normalize(p)
	if !c.Has(p) {
		return &dfserrors.NotFoundError{Path: p}
	}
	id, err := c.fs.GetID(p)
	if err != nil {
		return err
	}
	if err := c.requireOK(ctlDir, "rm", map[string]string{"id": strconv.FormatInt(id, 10)}, nil); err != nil {
		return err
	}
	parent := normalize(path.Dir(p))
	c.dir.Invalidate(parent)
	_, err = c.readdirUncached(parent)
	return err
}

// Mv renames/moves a file or directory from oldPath to newPath.
func (c *Client) Mv(oldPath, newPath string) error {
	oldPath = normalize(oldPath)
	newPath = normalize(newPath)

	if !c.Has(oldPath) {
		return &dfserrors.NotFoundError{Path: oldPath}
	}
	id, err := c.fs.GetID(oldPath)
	if err != nil {
		return err
	}
	newParent, newName := path.Split(newPath)
	newParentID, err := c.parentID(newParent)
	if err != nil {
		return err
	}

	meta, err := c.fs.GetMeta(oldPath)
	if err != nil {
		return err
	}

	action := "mvfile"
	controller := ctlFile
	if meta.IsDir() {
		action = "mvdir"
		controller = ctlDir
	}

	headers := map[string]string{
		"id":   strconv.FormatInt(id, 10),
		"pdid": strconv.FormatInt(newParentID, 10),
		"name": newName,
	}
	if err := c.requireOK(controller, action, headers, nil); err != nil {
		return err
	}

	oldParent := normalize(path.Dir(oldPath))
	c.dir.Invalidate(oldParent)
	c.dir.Invalidate(normalize(newParent))
	if _, err := c.readdirUncached(oldParent); err != nil {
		return err
	}
	_, err = c.readdirUncached(normalize(newParent))
	return err
}

func (c *Client) parentID(parent string) (int64, error) {
	parent = normalize(parent)
	if !c.fs.Has(parent) {
		if !c.Has(parent) {
			return 0, &dfserrors.NotFoundError{Path: parent}
		}
	}
	return c.fs.GetID(parent)
}

// --- helpers -----------------------------------------------------------

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + strings.TrimPrefix(p, "/"))
	return cleaned
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

