// Package ingestion turns raw policy text into indexed, embedded chunks.
//
// A Pipeline chunks a document, labels each chunk with a classify.Classifier,
// embeds the chunks in sub-batches on a worker pool and writes the result to
// a storage.VectorIndex and, optionally, a search.Engine. Re-ingesting a
// document replaces its previous chunks.
//
// Ingestion is partial-success: a chunk that cannot be embedded or stored is
// reported in the Report and the rest of the document is still indexed.
//
//	p, err := ingestion.NewPipeline(chunk, classifier, embedder, index,
//		ingestion.WithSearchEngine(engine))
//	if err != nil {
//		return err
//	}
//	defer p.Release()
//
//	report, err := p.Ingest(ctx, ingestion.Request{
//		PolicyID:   "POL-1",
//		DocumentID: "wording.txt",
//		Text:       text,
//	})
package ingestion
