// Package transport exposes the HTTP collaborator surface of §6: tips,
// transactions (JSON and hex), contracts, trie nodes, and peer
// registration. It is grounded on the teacher's core/virtual_machine.go
// HTTP+rate-limiter block and walletserver's mux.Router/controller split.
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/perseus101/tangledag/internal/engine"
	"github.com/perseus101/tangledag/internal/txn"
)

// Server is the HTTP collaborator surface over a Node.
type Server struct {
	node    *engine.Node
	log     *logrus.Entry
	limiter *rate.Limiter

	peersMu sync.RWMutex
	peers   map[string]string // peer id -> advertised address
}

// NewServer builds a mux.Router-backed Server over node, rate-limited at
// the teacher's own 200 req/s, burst 100.
func NewServer(node *engine.Node, log *logrus.Logger) *Server {
	return &Server{
		node:    node,
		log:     log.WithField("component", "transport"),
		limiter: rate.NewLimiter(200, 100),
		peers:   make(map[string]string),
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.RequestURI,
			"dur":    time.Since(start),
		}).Info("request")
	})
}

// Router builds the mux.Router exposing every path of §6.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.rateLimit, s.logRequests)

	r.HandleFunc("/tips", s.handleTips).Methods(http.MethodGet)
	r.HandleFunc("/transaction/{hash}", s.handleGetTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transaction/{hash}/status", s.handleTransactionStatus).Methods(http.MethodGet)
	r.HandleFunc("/transaction/{hash}/hex", s.handleTransactionHex).Methods(http.MethodGet)
	r.HandleFunc("/transaction", s.handlePostTransaction).Methods(http.MethodPost)
	r.HandleFunc("/contract/{id}", s.handleGetContract).Methods(http.MethodGet)
	r.HandleFunc("/contract/{id}/state", s.handleGetContractState).Methods(http.MethodGet)
	r.HandleFunc("/node/{hash}", s.handleGetNode).Methods(http.MethodGet)
	r.HandleFunc("/peer/register", s.handleRegisterPeer).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathHash(r *http.Request) (uint64, error) {
	return txn.ParseHashHex(mux.Vars(r)["hash"])
}

func (s *Server) handleTips(w http.ResponseWriter, r *http.Request) {
	trunk, branch := s.node.DAG.GetTips()
	writeJSON(w, http.StatusOK, map[string]uint64{"trunk_hash": trunk, "branch_hash": branch})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, err := s.node.DAG.GetTransaction(hash)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status, err := s.node.DAG.GetStatus(hash)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status.String())
}

func (s *Server) handleTransactionHex(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, err := s.node.DAG.GetTransaction(hash)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	b, err := tx.MarshalHex()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var tx txn.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	status, err := s.node.AddTransaction(&tx)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": status.String(), "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	id, err := pathHash(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := s.node.DAG.GetContract(id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"source": []byte(c.Source)})
}

func (s *Server) handleGetContractState(w http.ResponseWriter, r *http.Request) {
	id, err := pathHash(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := s.node.DAG.GetContract(id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	node, err := s.node.DAG.Trie().Node(hash)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type registerPeerRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleRegisterPeer(w http.ResponseWriter, r *http.Request) {
	var req registerPeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := uuid.New().String()
	s.peersMu.Lock()
	s.peers[id] = req.Address
	s.peersMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"peer_id": id})
}

// MilestoneSign dispatches a Sign event arriving out-of-band (e.g. from a
// peer broadcast), exposed here so the transport layer can drive the
// milestone state machine without importing the engine's internals
// directly.
func (s *Server) MilestoneSign(candidate, contractID uint64, signature []byte) error {
	return s.node.Sign(candidate, contractID, signature)
}
