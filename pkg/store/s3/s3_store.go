package s3store

import (
	"bytes"
	"io"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/moonwalker/verdict/pkg/store"
)

const (
	bucketRegion = "eu-central-1"
)

type s3store struct {
	bucketName string

	once sync.Once
	err  error
	s3   *s3.S3
}

func New(bucketName string) store.Store {
	return &s3store{bucketName: bucketName}
}

func (s *s3store) open() error {
	s.once.Do(func() {
		s.s3 = s3.New(session.Must(session.NewSession()))

		inp := &s3.CreateBucketInput{
			Bucket: aws.String(s.bucketName),
			CreateBucketConfiguration: &s3.CreateBucketConfiguration{
				LocationConstraint: aws.String(bucketRegion),
			},
		}

		_, err := s.s3.CreateBucket(inp)
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeBucketAlreadyOwnedByYou:
				err = nil
			}
		}
		s.err = err
	})
	return s.err
}

func (s *s3store) GetInternalStore() interface{} {
	if err := s.open(); err != nil {
		return nil
	}
	return s.s3
}

func (s *s3store) Get(key string) (val []byte, err error) {
	inp := &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}

	err = s.open()
	if err != nil {
		return
	}

	out, err := s.s3.GetObject(inp)
	if err != nil {
		if isNotFound(err) {
			err = nil
		}
		return
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (s *s3store) Set(key string, val []byte, options *store.WriteOptions) (err error) {
	inp := &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   aws.ReadSeekCloser(bytes.NewReader(val)),
	}

	if options != nil {
		if len(options.ContentType) > 0 {
			inp.ContentType = aws.String(options.ContentType)
		}
	}

	err = s.open()
	if err != nil {
		return
	}

	_, err = s.s3.PutObject(inp)
	return
}

// IncrBy is a read-modify-write; s3 has no atomic counters.
func (s *s3store) IncrBy(key string, delta float64) (float64, error) {
	val, err := s.Get(key)
	if err != nil {
		return 0, err
	}

	var cur float64
	if val != nil {
		cur, err = strconv.ParseFloat(string(val), 64)
		if err != nil {
			return 0, err
		}
	}

	cur += delta
	err = s.Set(key, []byte(strconv.FormatFloat(cur, 'f', -1, 64)), &store.WriteOptions{ContentType: "text/plain"})
	return cur, err
}

func (s *s3store) Delete(key string) (err error) {
	inp := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}

	err = s.open()
	if err != nil {
		return
	}

	_, err = s.s3.DeleteObject(inp)
	return
}

func (s *s3store) DeleteAll(prefix string) error {
	var keys []string
	err := s.listKeys(prefix, func(key string) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *s3store) Exists(key string) (bool, error) {
	err := s.open()
	if err != nil {
		return false, err
	}

	_, err = s.s3.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *s3store) Expire(key string, ttl int64) error {
	return store.ErrNotImplemented
}

func (s *s3store) Scan(prefix string, skip int, limit int, fn func(key string, val []byte)) error {
	i, n := 0, 0
	var ferr error
	err := s.listKeys(prefix, func(key string) bool {
		i++
		if i <= skip {
			return true
		}
		if limit > 0 && n >= limit {
			return false
		}

		val, err := s.Get(key)
		if err != nil {
			ferr = err
			return false
		}

		n++
		fn(key, val)
		return true
	})
	if err != nil {
		return err
	}
	return ferr
}

func (s *s3store) Count(prefix string) int {
	n := 0
	err := s.listKeys(prefix, func(string) bool {
		n++
		return true
	})
	if err != nil {
		return -1
	}
	return n
}

func (s *s3store) Close() (err error) {
	return
}

func (s *s3store) listKeys(prefix string, fn func(key string) bool) error {
	inp := &s3.ListObjectsInput{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	}

	if err := s.open(); err != nil {
		return err
	}

	return s.s3.ListObjectsPages(inp, func(p *s3.ListObjectsOutput, last bool) bool {
		for _, obj := range p.Contents {
			if !fn(aws.StringValue(obj.Key)) {
				return false
			}
		}
		return true
	})
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
