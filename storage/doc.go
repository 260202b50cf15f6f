// Package storage provides ISecureStorage implementations for key cache
// entries and other small records.
//
// [Memory] keeps values in process and wipes them on Delete and Close.
// [FileStore] keeps one AES-256-GCM encrypted file per key under a data
// directory, with the encryption key derived from a master password:
//
//	store, err := storage.NewFileStore("/var/lib/paytrust", password)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := cache.Save(store); err != nil {
//	    return err
//	}
package storage
