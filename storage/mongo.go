package storage

import (
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/globalsign/mgo"
	"github.com/pkg/errors"
)

const (
	mongoCollection = "settings"
	mongoDocumentID = "streambot"
)

type mongoDocument struct {
	ID        string    `bson:"_id"`
	Document  string    `bson:"document"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoBackend upserts the document into one mongodb record
type MongoBackend struct {
	session  *mgo.Session
	database string
}

// DialMongo connects to mongodb, a "ssl=true" url parameter enables TLS
func DialMongo(url, database string) (*MongoBackend, error) {
	log := cache.GetLogger().WithField("module", "storage")
	log.Info("Connecting to mongodb")

	newUrl := strings.TrimSuffix(url, "?ssl=true")
	newUrl = strings.Replace(newUrl, "ssl=true&", "", -1)

	dialInfo, err := mgo.ParseURL(newUrl)
	if err != nil {
		return nil, errors.Wrap(err, "parsing mongodb url")
	}
	dialInfo.Timeout = 15 * time.Second

	if newUrl != url {
		tlsConfig := &tls.Config{}
		dialInfo.DialServer = func(addr *mgo.ServerAddr) (net.Conn, error) {
			return tls.Dial("tcp", addr.String(), tlsConfig)
		}
	}

	session, err := mgo.DialWithInfo(dialInfo)
	if err != nil {
		return nil, errors.Wrap(err, "dialing mongodb")
	}
	session.SetMode(mgo.Primary, false)

	if database == "" {
		database = dialInfo.Database
	}

	log.Info("Connected to mongodb")
	return &MongoBackend{session: session, database: database}, nil
}

func (b *MongoBackend) Load() ([]byte, error) {
	session := b.session.Copy()
	defer session.Close()

	var doc mongoDocument
	err := session.DB(b.database).C(mongoCollection).FindId(mongoDocumentID).One(&doc)
	if err == mgo.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading settings from mongodb")
	}
	return []byte(doc.Document), nil
}

func (b *MongoBackend) Save(data []byte) error {
	session := b.session.Copy()
	defer session.Close()

	_, err := session.DB(b.database).C(mongoCollection).UpsertId(mongoDocumentID, mongoDocument{
		ID:        mongoDocumentID,
		Document:  string(data),
		UpdatedAt: time.Now(),
	})
	return errors.Wrap(err, "saving settings to mongodb")
}

// Close closes the mongodb session
func (b *MongoBackend) Close() {
	b.session.Close()
}
